// Package vocab holds the immutable tables a byte-level BPE tokenizer is built from.
package vocab

import (
	"fmt"

	errorskg "github.com/sweetpotato0/gptbpe/errors"
)

// Entry is one (token string, token id) pair of a vocabulary source.
type Entry struct {
	Token string
	ID    int
}

// Vocabulary maps token strings to ids and back. Both directions are built from
// the same entries, so Token(ID(s)) == s for every known s. It is never mutated
// after New returns and is safe for concurrent use.
type Vocabulary struct {
	ids    map[string]int
	tokens map[int]string
}

// New builds a Vocabulary. Token strings and ids must both be unique, and ids non-negative.
func New(entries []Entry) (*Vocabulary, error) {
	v := &Vocabulary{
		ids:    make(map[string]int, len(entries)),
		tokens: make(map[int]string, len(entries)),
	}
	for _, e := range entries {
		if e.ID < 0 {
			return nil, fmt.Errorf("%w: negative id %d for token %q", errorskg.ErrInvalidVocabulary, e.ID, e.Token)
		}
		if prev, ok := v.ids[e.Token]; ok {
			return nil, fmt.Errorf("%w: token %q has ids %d and %d", errorskg.ErrInvalidVocabulary, e.Token, prev, e.ID)
		}
		if prev, ok := v.tokens[e.ID]; ok {
			return nil, fmt.Errorf("%w: id %d used by %q and %q", errorskg.ErrInvalidVocabulary, e.ID, prev, e.Token)
		}
		v.ids[e.Token] = e.ID
		v.tokens[e.ID] = e.Token
	}
	return v, nil
}

// FromMap builds a Vocabulary from a token -> id map such as a decoded vocab.json.
func FromMap(m map[string]int) (*Vocabulary, error) {
	entries := make([]Entry, 0, len(m))
	for tok, id := range m {
		entries = append(entries, Entry{Token: tok, ID: id})
	}
	return New(entries)
}

// ID returns the id of token.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token string stored for id.
func (v *Vocabulary) Token(id int) (string, bool) {
	tok, ok := v.tokens[id]
	return tok, ok
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int {
	return len(v.ids)
}

// Entries returns every entry ordered by id.
func (v *Vocabulary) Entries() []Entry {
	out := make([]Entry, 0, len(v.tokens))
	for tok, id := range v.ids {
		out = append(out, Entry{Token: tok, ID: id})
	}
	sortEntries(out)
	return out
}
