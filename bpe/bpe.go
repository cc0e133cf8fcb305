// Package bpe applies ranked merge rules to the symbols of one chunk.
package bpe

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Ranker returns the priority of merging left followed by right. Lower ranks merge first.
type Ranker interface {
	Rank(left, right string) (int, bool)
}

// Merger reduces a chunk to its sub-tokens. It holds no per-call state; the
// optional cache is internally synchronised, so a Merger is safe for concurrent use.
type Merger struct {
	ranks Ranker
	cache *lru.Cache
}

// Option configures a Merger.
type Option func(*Merger) error

// WithCacheSize keeps the results of the last n distinct chunks. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(m *Merger) error {
		if n <= 0 {
			m.cache = nil
			return nil
		}
		c, err := lru.New(n)
		if err != nil {
			return fmt.Errorf("failed to create bpe cache: %w", err)
		}
		m.cache = c
		return nil
	}
}

// New creates a Merger over ranks.
func New(ranks Ranker, opts ...Option) (*Merger, error) {
	if ranks == nil {
		return nil, fmt.Errorf("bpe: ranks cannot be nil")
	}
	m := &Merger{ranks: ranks}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Merge splits chunk into one symbol per codepoint and merges them.
// The returned slice may be shared with the cache and must be treated as read-only.
func (m *Merger) Merge(chunk string) []string {
	if m.cache != nil {
		if v, ok := m.cache.Get(chunk); ok {
			return v.([]string)
		}
	}

	symbols := make([]string, 0, len(chunk))
	for _, r := range chunk {
		symbols = append(symbols, string(r))
	}
	out, _ := merge(m.ranks, symbols)

	if m.cache != nil {
		m.cache.Add(chunk, out)
	}
	return out
}

// MergeSymbols merges an already split symbol sequence. symbols is not modified.
func (m *Merger) MergeSymbols(symbols []string) []string {
	word := make([]string, len(symbols))
	copy(word, symbols)
	out, _ := merge(m.ranks, word)
	return out
}

// CacheLen reports how many chunks are cached.
func (m *Merger) CacheLen() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len()
}

// merge runs the greedy lowest-rank reduction and reports how many rounds it took.
// Every round removes at least one symbol, so a word of n symbols needs at most n-1 rounds.
func merge(ranks Ranker, word []string) ([]string, int) {
	rounds := 0
	for len(word) > 1 {
		best, ok := lowestPair(ranks, word)
		if !ok {
			break
		}
		word = apply(word, best)
		rounds++
	}
	return word, rounds
}

// lowestPair finds the adjacent pair with the smallest rank. On equal ranks the
// pair that occurs first in the word wins.
func lowestPair(ranks Ranker, word []string) ([2]string, bool) {
	var (
		best     [2]string
		bestRank int
		found    bool
	)
	for i := 0; i+1 < len(word); i++ {
		r, ok := ranks.Rank(word[i], word[i+1])
		if !ok {
			continue
		}
		if !found || r < bestRank {
			best = [2]string{word[i], word[i+1]}
			bestRank = r
			found = true
		}
	}
	return best, found
}

// apply replaces every non-overlapping occurrence of pair, scanning left to right.
func apply(word []string, pair [2]string) []string {
	out := make([]string, 0, len(word))
	for i := 0; i < len(word); {
		if i+1 < len(word) && word[i] == pair[0] && word[i+1] == pair[1] {
			out = append(out, pair[0]+pair[1])
			i += 2
			continue
		}
		out = append(out, word[i])
		i++
	}
	return out
}
