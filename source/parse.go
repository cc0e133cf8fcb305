package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/vocab"
)

// ParseVocabJSON reads a vocab.json object ({"token": id, ...}) keeping file order.
func ParseVocabJSON(r io.Reader) ([]vocab.Entry, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var entries []vocab.Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read vocab key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: vocab key %v is not a string", errorskg.ErrInvalidVocabulary, keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read id of %q: %w", key, err)
		}
		num, ok := valTok.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: id of %q is not a number", errorskg.ErrInvalidVocabulary, key)
		}
		id, err := strconv.Atoi(num.String())
		if err != nil {
			return nil, fmt.Errorf("%w: id of %q is not an integer: %v", errorskg.ErrInvalidVocabulary, key, err)
		}
		entries = append(entries, vocab.Entry{Token: key, ID: id})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return entries, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read vocab json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", errorskg.ErrInvalidVocabulary, want, tok)
	}
	return nil
}

// ParseMerges reads a merges.txt file: one "left right" rule per line. A
// leading "#version" header and blank lines are ignored, lines with fewer than
// two fields are skipped, and rank is the position among accepted rules.
func ParseMerges(r io.Reader) ([]vocab.Pair, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rules []vocab.Pair
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "#version") {
				continue
			}
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rules = append(rules, vocab.Pair{Left: fields[0], Right: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read merges: %w", err)
	}
	return rules, nil
}

// hfTokenizer is the subset of a HuggingFace tokenizer.json we need.
type hfTokenizer struct {
	Model struct {
		Type   string            `json:"type"`
		Vocab  map[string]int    `json:"vocab"`
		Merges []json.RawMessage `json:"merges"`
	} `json:"model"`
}

// ParseTokenizerJSON reads model.vocab and model.merges from a HuggingFace
// tokenizer.json. Merges may be "left right" strings or [left, right] arrays.
func ParseTokenizerJSON(r io.Reader) ([]vocab.Entry, []vocab.Pair, error) {
	var doc hfTokenizer
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("failed to decode tokenizer.json: %w", err)
	}
	if doc.Model.Type != "" && doc.Model.Type != "BPE" {
		return nil, nil, fmt.Errorf("%w: model type %q is not BPE", errorskg.ErrInvalidInput, doc.Model.Type)
	}

	entries := make([]vocab.Entry, 0, len(doc.Model.Vocab))
	for tok, id := range doc.Model.Vocab {
		entries = append(entries, vocab.Entry{Token: tok, ID: id})
	}

	rules := make([]vocab.Pair, 0, len(doc.Model.Merges))
	for i, raw := range doc.Model.Merges {
		p, err := parseMergeRule(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("merge %d: %w", i, err)
		}
		rules = append(rules, p)
	}
	return entries, rules, nil
}

func parseMergeRule(raw json.RawMessage) (vocab.Pair, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		fields := strings.Split(s, " ")
		if len(fields) != 2 {
			return vocab.Pair{}, fmt.Errorf("%w: rule %q", errorskg.ErrInvalidMerges, s)
		}
		return vocab.Pair{Left: fields[0], Right: fields[1]}, nil
	}

	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 2 {
		return vocab.Pair{}, fmt.Errorf("%w: rule %s", errorskg.ErrInvalidMerges, string(raw))
	}
	return vocab.Pair{Left: arr[0], Right: arr[1]}, nil
}
