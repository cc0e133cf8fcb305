// Package runner encodes and decodes batches of inputs with bounded concurrency.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/pkg/telemetry"
	"github.com/sweetpotato0/gptbpe/tokenizer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultConcurrency = 10

// Result is the outcome of one batch item. Results keep input order.
type Result[T any] struct {
	Index int
	Value T
	Error error
}

// Runner runs tokenizer calls, at most maxConcurrency at a time.
type Runner struct {
	tok       tokenizer.Tokenizer
	semaphore chan struct{}
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New creates a new runner. maxConcurrency <= 0 selects the default of 10.
func New(tok tokenizer.Tokenizer, maxConcurrency int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}
	return &Runner{
		tok:       tok,
		semaphore: make(chan struct{}, maxConcurrency),
		tracer:    telemetry.Tracer("gptbpe/runner"),
		logger:    logging.WithComponent("runner"),
	}
}

// Encode encodes one text once a slot is free.
func (r *Runner) Encode(ctx context.Context, text string) ([]int, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.tok.Encode(text)
}

// Decode decodes one id sequence once a slot is free.
func (r *Runner) Decode(ctx context.Context, ids []int) (string, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.tok.Decode(ids)
}

// CountTokens counts the tokens of one text once a slot is free.
func (r *Runner) CountTokens(ctx context.Context, text string) (int, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return r.tok.CountTokens(text)
}

// EncodeBatch encodes every text. One failing item does not stop the others.
func (r *Runner) EncodeBatch(ctx context.Context, texts []string) []*Result[[]int] {
	return runBatch(ctx, r, "runner.EncodeBatch", len(texts), func(ctx context.Context, i int) ([]int, error) {
		return r.Encode(ctx, texts[i])
	})
}

// DecodeBatch decodes every id sequence.
func (r *Runner) DecodeBatch(ctx context.Context, batches [][]int) []*Result[string] {
	return runBatch(ctx, r, "runner.DecodeBatch", len(batches), func(ctx context.Context, i int) (string, error) {
		return r.Decode(ctx, batches[i])
	})
}

// CountBatch counts the tokens of every text.
func (r *Runner) CountBatch(ctx context.Context, texts []string) []*Result[int] {
	return runBatch(ctx, r, "runner.CountBatch", len(texts), func(ctx context.Context, i int) (int, error) {
		return r.CountTokens(ctx, texts[i])
	})
}

func runBatch[T any](ctx context.Context, r *Runner, name string, n int, fn func(context.Context, int) (T, error)) []*Result[T] {
	ctx, span := r.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int("batch.size", n)))

	results := make([]*Result[T], n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("batch item panicked", "batch", name, "index", index, "panic", p)
					results[index] = &Result[T]{
						Index: index,
						Error: fmt.Errorf("panic in item %d: %v", index, p),
					}
				}
			}()

			v, err := fn(ctx, index)
			results[index] = &Result[T]{Index: index, Value: v, Error: err}
		}(i)
	}
	wg.Wait()

	failed := 0
	var firstErr error
	for _, res := range results {
		if res.Error != nil {
			if firstErr == nil {
				firstErr = res.Error
			}
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))
	telemetry.End(span, firstErr)
	if failed > 0 {
		r.logger.Warn("batch finished with errors", "batch", name, "size", n, "failed", failed)
	}
	return results
}
