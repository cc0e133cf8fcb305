// Package chunking cuts text into windows of at most N BPE tokens for prompt construction.
package chunking

import (
	"context"
	"fmt"

	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/tokenizer"
)

// Tokenizer is the part of tokenizer.BPE the chunker needs.
type Tokenizer interface {
	Tokenize(text string) ([]tokenizer.Piece, error)
	Decode(ids []int) (string, error)
}

var _ Tokenizer = (*tokenizer.BPE)(nil)

// Chunk is one window. Start and End are token offsets into the encoded text.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	IDs   []int  `json:"ids"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Chunker keeps segmentation chunks whole where it can and overlaps windows by a token count.
type Chunker struct {
	tok           Tokenizer
	maxTokens     int
	overlapTokens int
}

// Option customises the token chunker.
type Option func(*Chunker)

// WithMaxTokens sets the maximum allowed tokens per chunk (default 256).
func WithMaxTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.maxTokens = tokens
		}
	}
}

// WithOverlapTokens sets how many tokens are shared between consecutive chunks (default 32).
func WithOverlapTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens >= 0 {
			c.overlapTokens = tokens
		}
	}
}

// New creates a new token-aware chunker.
func New(tok Tokenizer, opts ...Option) (*Chunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", errorskg.ErrInvalidInput)
	}
	ch := &Chunker{
		tok:           tok,
		maxTokens:     256,
		overlapTokens: 32,
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.overlapTokens >= ch.maxTokens {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max tokens %d",
			errorskg.ErrInvalidInput, ch.overlapTokens, ch.maxTokens)
	}
	return ch, nil
}

// Chunk encodes text and groups its tokens into windows. A window ends on a
// segmentation chunk boundary unless a single chunk is longer than the window,
// in which case it is split between tokens and the window text may end inside
// a multi-byte character.
func (c *Chunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	pieces, err := c.tok.Tokenize(text)
	if err != nil {
		return nil, err
	}

	var ids []int
	// boundaries[i] is true when a piece starts at token offset i
	boundaries := make([]bool, 0, len(text)/3+2)
	for _, p := range pieces {
		for j := range p.IDs {
			boundaries = append(boundaries, j == 0)
		}
		ids = append(ids, p.IDs...)
	}
	boundaries = append(boundaries, true)

	var chunks []Chunk
	start := 0
	for start < len(ids) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+c.maxTokens, len(ids))
		for cut := end; cut > start; cut-- {
			if boundaries[cut] {
				end = cut
				break
			}
		}

		window := ids[start:end]
		chunkText, err := c.tok.Decode(window)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  chunkText,
			IDs:   append([]int(nil), window...),
			Start: start,
			End:   end,
		})

		if end == len(ids) {
			break
		}
		start = max(end-c.overlapTokens, start+1)
	}
	return chunks, nil
}
