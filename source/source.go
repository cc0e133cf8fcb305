// Package source loads the vocabulary and merge tables a tokenizer is built from.
package source

import (
	"context"

	"github.com/sweetpotato0/gptbpe/vocab"
)

// VocabSource provides a parsed and validated vocabulary.
type VocabSource interface {
	LoadVocabulary(ctx context.Context) (*vocab.Vocabulary, error)
}

// MergeSource provides a parsed merge table; rank is the position of a rule.
type MergeSource interface {
	LoadMerges(ctx context.Context) (*vocab.MergeRanks, error)
}

// Source provides both tables.
type Source interface {
	VocabSource
	MergeSource
}

// Store persists both tables so that a Source can load them later.
type Store interface {
	Store(ctx context.Context, v *vocab.Vocabulary, m *vocab.MergeRanks) error
}

// Static serves tables that are already in memory.
type Static struct {
	Vocab  *vocab.Vocabulary
	Merges *vocab.MergeRanks
}

var _ Source = Static{}

func (s Static) LoadVocabulary(ctx context.Context) (*vocab.Vocabulary, error) {
	return s.Vocab, ctx.Err()
}

func (s Static) LoadMerges(ctx context.Context) (*vocab.MergeRanks, error) {
	return s.Merges, ctx.Err()
}

// Load fetches both tables, vocabulary first.
func Load(ctx context.Context, vs VocabSource, ms MergeSource) (*vocab.Vocabulary, *vocab.MergeRanks, error) {
	v, err := vs.LoadVocabulary(ctx)
	if err != nil {
		return nil, nil, err
	}
	m, err := ms.LoadMerges(ctx)
	if err != nil {
		return nil, nil, err
	}
	return v, m, nil
}
