// Package tiktoken adapts github.com/pkoukk/tiktoken-go to the tokenizer.Tokenizer
// interface. Its r50k_base encoding is the GPT-2 vocabulary, so it serves as a
// reference implementation for cross-checking the BPE tokenizer.
package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/gptbpe/tokenizer"
)

// GPT2Encoding is the tiktoken name of the GPT-2 byte-level BPE.
const GPT2Encoding = "r50k_base"

// Tokenizer wraps a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

// New loads an encoding by model name ("gpt2") or encoding name ("r50k_base").
// tiktoken-go downloads the rank file on first use unless TIKTOKEN_CACHE_DIR
// holds a cached copy.
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", name, err)
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// NewGPT2 loads the r50k_base encoding.
func NewGPT2() (*Tokenizer, error) {
	return New(GPT2Encoding)
}

// Encode treats special-token text as ordinary text, like the BPE tokenizer does.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

func (t *Tokenizer) CountTokens(text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *Tokenizer) Decode(ids []int) (string, error) {
	return t.enc.Decode(ids), nil
}
