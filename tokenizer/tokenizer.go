// Package tokenizer turns text into GPT-2 style token ids and back.
package tokenizer

import (
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/gptbpe/bpe"
	"github.com/sweetpotato0/gptbpe/bytelevel"
	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/segment"
	"github.com/sweetpotato0/gptbpe/vocab"
)

// Tokenizer is the text <-> id contract shared by every backend in this module.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	CountTokens(text string) (int, error)
	Decode(ids []int) (string, error)
}

var _ Tokenizer = (*BPE)(nil)

// Piece is one segmentation chunk together with the ids it encodes to.
type Piece struct {
	Text string `json:"text"`
	IDs  []int  `json:"ids"`
}

// BPE is a byte-level BPE tokenizer. Its tables are never mutated after New,
// so one BPE can serve concurrent Encode and Decode calls.
type BPE struct {
	vocab     *vocab.Vocabulary
	merger    *bpe.Merger
	bytes     *bytelevel.Table
	segmenter segment.Segmenter
	unknownID UnknownIDPolicy
	logger    *slog.Logger
}

// New builds a tokenizer over an already parsed vocabulary and merge table.
func New(v *vocab.Vocabulary, m *vocab.MergeRanks, opts ...Option) (*BPE, error) {
	if v == nil || m == nil {
		return nil, fmt.Errorf("%w: vocabulary and merges are required", errorskg.ErrInvalidInput)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.WithComponent("tokenizer")
	}

	if o.strict {
		if err := vocab.CheckClosure(v, m); err != nil {
			return nil, err
		}
	}

	seg := o.segmenter
	if seg == nil {
		p, err := segment.NewPattern(segment.GPT2Pattern)
		if err != nil {
			return nil, err
		}
		seg = p
	}

	merger, err := bpe.New(m, bpe.WithCacheSize(o.cacheSize))
	if err != nil {
		return nil, err
	}

	o.logger.Debug("tokenizer ready",
		"vocab_size", v.Len(),
		"merges", m.Len(),
		"cache_size", o.cacheSize,
		"unknown_id", o.unknownID.String(),
	)

	return &BPE{
		vocab:     v,
		merger:    merger,
		bytes:     bytelevel.Default(),
		segmenter: seg,
		unknownID: o.unknownID,
		logger:    o.logger,
	}, nil
}

// Vocabulary returns the vocabulary the tokenizer encodes against.
func (t *BPE) Vocabulary() *vocab.Vocabulary {
	return t.vocab
}

// Encode returns the ids of text. A sub-token missing from the vocabulary means
// the vocabulary and merge table do not belong together; no partial result is returned.
func (t *BPE) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text)/3+1)
	err := t.each(text, func(chunk string, sub []string) error {
		for _, s := range sub {
			id, err := t.lookup(chunk, s)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Tokenize is Encode keeping the chunk boundaries.
func (t *BPE) Tokenize(text string) ([]Piece, error) {
	var pieces []Piece
	err := t.each(text, func(chunk string, sub []string) error {
		p := Piece{Text: chunk, IDs: make([]int, 0, len(sub))}
		for _, s := range sub {
			id, err := t.lookup(chunk, s)
			if err != nil {
				return err
			}
			p.IDs = append(p.IDs, id)
		}
		pieces = append(pieces, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pieces, nil
}

// CountTokens returns len(Encode(text)).
func (t *BPE) CountTokens(text string) (int, error) {
	n := 0
	err := t.each(text, func(chunk string, sub []string) error {
		for _, s := range sub {
			if _, err := t.lookup(chunk, s); err != nil {
				return err
			}
		}
		n += len(sub)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (t *BPE) each(text string, fn func(chunk string, sub []string) error) error {
	for chunk := range t.segmenter.Chunks(text) {
		sub := t.merger.Merge(t.bytes.Encode(chunk))
		if err := fn(chunk, sub); err != nil {
			return err
		}
	}
	return nil
}

func (t *BPE) lookup(chunk, sub string) (int, error) {
	id, ok := t.vocab.ID(sub)
	if !ok {
		err := errorskg.NewTokenizeError(errorskg.StageVocabularyLookup, chunk,
			fmt.Errorf("%w: sub-token %q", errorskg.ErrUnknownToken, sub))
		t.logger.Error("vocabulary and merges disagree", "chunk", chunk, "sub_token", sub)
		return 0, err
	}
	return id, nil
}

// DecodeBytes returns the byte sequence the ids stand for.
func (t *BPE) DecodeBytes(ids []int) ([]byte, error) {
	out := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		tok, ok := t.vocab.Token(id)
		if !ok {
			if !t.unknownID.substitute {
				return nil, errorskg.NewTokenIDError(id, errorskg.ErrUnknownTokenID)
			}
			out = append(out, t.unknownID.placeholder...)
			continue
		}

		var err error
		out, err = t.bytes.AppendDecoded(out, tok)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Decode returns the text the ids stand for. The bytes are returned as is, so
// an id sequence cut inside a multi-byte character yields invalid UTF-8.
func (t *BPE) Decode(ids []int) (string, error) {
	b, err := t.DecodeBytes(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
