package tokenizer

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/gptbpe/source"
)

// Load fetches both tables and builds a tokenizer over them.
func Load(ctx context.Context, vs source.VocabSource, ms source.MergeSource, opts ...Option) (*BPE, error) {
	v, m, err := source.Load(ctx, vs, ms)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer tables: %w", err)
	}
	return New(v, m, opts...)
}
