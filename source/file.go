package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/vocab"
)

// Files reads a GPT-2 style vocab.json and merges.txt pair.
type Files struct {
	VocabPath  string
	MergesPath string
	Logger     *slog.Logger
}

var _ Source = (*Files)(nil)

// NewFiles creates a file source.
func NewFiles(vocabPath, mergesPath string) *Files {
	return &Files{
		VocabPath:  vocabPath,
		MergesPath: mergesPath,
		Logger:     logging.WithComponent("source.file"),
	}
}

func (f *Files) logger() *slog.Logger {
	if f.Logger == nil {
		return logging.WithComponent("source.file")
	}
	return f.Logger
}

// LoadVocabulary implements VocabSource.
func (f *Files) LoadVocabulary(ctx context.Context) (*vocab.Vocabulary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab file: %w", err)
	}
	defer file.Close()

	entries, err := ParseVocabJSON(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.VocabPath, err)
	}
	v, err := vocab.New(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to build vocabulary from %s: %w", f.VocabPath, err)
	}
	f.logger().Info("vocabulary loaded", "path", f.VocabPath, "tokens", v.Len())
	return v, nil
}

// LoadMerges implements MergeSource.
func (f *Files) LoadMerges(ctx context.Context) (*vocab.MergeRanks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.MergesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open merges file: %w", err)
	}
	defer file.Close()

	rules, err := ParseMerges(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.MergesPath, err)
	}
	m, err := vocab.NewMergeRanks(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build merge table from %s: %w", f.MergesPath, err)
	}
	f.logger().Info("merges loaded", "path", f.MergesPath, "rules", m.Len())
	return m, nil
}

// TokenizerJSON reads both tables from one HuggingFace tokenizer.json.
type TokenizerJSON struct {
	Path string

	vocab  *vocab.Vocabulary
	merges *vocab.MergeRanks
}

var _ Source = (*TokenizerJSON)(nil)

// NewTokenizerJSON creates a tokenizer.json source. The file is read once, on first load.
func NewTokenizerJSON(path string) *TokenizerJSON {
	return &TokenizerJSON{Path: path}
}

func (t *TokenizerJSON) load(ctx context.Context) error {
	if t.vocab != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Open(t.Path)
	if err != nil {
		return fmt.Errorf("failed to open tokenizer file: %w", err)
	}
	defer file.Close()

	entries, rules, err := ParseTokenizerJSON(file)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", t.Path, err)
	}
	v, err := vocab.New(entries)
	if err != nil {
		return fmt.Errorf("failed to build vocabulary from %s: %w", t.Path, err)
	}
	m, err := vocab.NewMergeRanks(rules)
	if err != nil {
		return fmt.Errorf("failed to build merge table from %s: %w", t.Path, err)
	}
	t.vocab, t.merges = v, m
	logging.WithComponent("source.file").Info("tokenizer.json loaded", "path", t.Path, "tokens", v.Len(), "rules", m.Len())
	return nil
}

// LoadVocabulary implements VocabSource.
func (t *TokenizerJSON) LoadVocabulary(ctx context.Context) (*vocab.Vocabulary, error) {
	if err := t.load(ctx); err != nil {
		return nil, err
	}
	return t.vocab, nil
}

// LoadMerges implements MergeSource.
func (t *TokenizerJSON) LoadMerges(ctx context.Context) (*vocab.MergeRanks, error) {
	if err := t.load(ctx); err != nil {
		return nil, err
	}
	return t.merges, nil
}
