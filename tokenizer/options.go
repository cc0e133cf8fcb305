package tokenizer

import (
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/gptbpe/config"
	"github.com/sweetpotato0/gptbpe/segment"
)

// UnknownIDPolicy decides what Decode does with an id that has no vocabulary entry.
type UnknownIDPolicy struct {
	substitute  bool
	placeholder string
}

// FailOnUnknownID makes Decode return ErrUnknownTokenID. This is the default.
func FailOnUnknownID() UnknownIDPolicy {
	return UnknownIDPolicy{}
}

// PlaceholderOnUnknownID makes Decode emit placeholder as output text for every
// unknown id and carry on. An empty placeholder drops unknown ids silently.
func PlaceholderOnUnknownID(placeholder string) UnknownIDPolicy {
	return UnknownIDPolicy{substitute: true, placeholder: placeholder}
}

func (p UnknownIDPolicy) String() string {
	if !p.substitute {
		return "fail"
	}
	return fmt.Sprintf("placeholder(%q)", p.placeholder)
}

type options struct {
	segmenter segment.Segmenter
	unknownID UnknownIDPolicy
	cacheSize int
	strict    bool
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{unknownID: FailOnUnknownID()}
}

// Option customises a BPE tokenizer.
type Option func(*options)

// WithSegmenter replaces the GPT-2 pattern segmenter.
func WithSegmenter(s segment.Segmenter) Option {
	return func(o *options) {
		if s != nil {
			o.segmenter = s
		}
	}
}

// WithUnknownIDPolicy sets the decode policy for ids missing from the vocabulary.
func WithUnknownIDPolicy(p UnknownIDPolicy) Option {
	return func(o *options) {
		o.unknownID = p
	}
}

// WithCacheSize enables an LRU cache of merged chunks (default 0, disabled).
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.cacheSize = n
		}
	}
}

// WithStrictTables rejects merge tables that can produce tokens missing from the vocabulary.
func WithStrictTables(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithLogger sets the logger used for construction and contract violations.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// OptionsFromConfig translates a TokenizerConfig into options.
func OptionsFromConfig(cfg *config.TokenizerConfig) []Option {
	policy := FailOnUnknownID()
	if cfg.UnknownID == config.UnknownIDPlaceholder {
		policy = PlaceholderOnUnknownID(cfg.Placeholder)
	}
	return []Option{
		WithUnknownIDPolicy(policy),
		WithCacheSize(cfg.CacheSize),
		WithStrictTables(cfg.Strict),
	}
}
