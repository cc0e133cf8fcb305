// Package segment splits text into the coarse chunks that BPE merges never cross:
// contractions, letter runs, digit runs, punctuation runs and whitespace runs.
package segment

import (
	"fmt"
	"iter"

	"github.com/dlclark/regexp2"
)

// GPT2Pattern is the pre-tokenizer pattern the GPT-2 vocabulary was trained with.
const GPT2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// Segmenter produces the chunks of a text in input order. Chunks partition the
// input: concatenating them gives the text back.
type Segmenter interface {
	// Chunks returns a lazy sequence; ranging over it again restarts from the beginning.
	Chunks(text string) iter.Seq[string]
}

// Split collects every chunk of text.
func Split(s Segmenter, text string) []string {
	var out []string
	for chunk := range s.Chunks(text) {
		out = append(out, chunk)
	}
	return out
}

// Pattern segments with a backtracking regular expression. It is safe for concurrent use.
type Pattern struct {
	re *regexp2.Regexp
}

var _ Segmenter = (*Pattern)(nil)

// NewPattern compiles expr. Use GPT2Pattern unless the vocabulary was trained with another one.
func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("failed to compile segmentation pattern: %w", err)
	}
	return &Pattern{re: re}, nil
}

// MustGPT2 returns the GPT-2 pattern segmenter.
func MustGPT2() *Pattern {
	p, err := NewPattern(GPT2Pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Chunks implements Segmenter. regexp2 works on runes, so invalid UTF-8 bytes
// come back as U+FFFD; use Scanner when input may not be valid UTF-8.
func (p *Pattern) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		// Without a MatchTimeout regexp2 never returns an error here.
		m, _ := p.re.FindStringMatch(text)
		for m != nil {
			if !yield(m.String()) {
				return
			}
			m, _ = p.re.FindNextMatch(m)
		}
	}
}
