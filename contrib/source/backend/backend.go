// Package backend opens the table source or store named by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/gptbpe/config"
	"github.com/sweetpotato0/gptbpe/contrib/source/mongo"
	"github.com/sweetpotato0/gptbpe/contrib/source/pg"
	"github.com/sweetpotato0/gptbpe/contrib/source/redis"
	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/source"
)

// Backend is a table source holding resources that must be released.
type Backend interface {
	source.Source
	Close() error
}

// StoreBackend is a Backend that can also publish tables.
type StoreBackend interface {
	Backend
	source.Store
}

type nopCloser struct {
	source.Source
}

func (nopCloser) Close() error { return nil }

// Open returns the source selected by cfg.Source. Database backends read
// their connection settings from the environment.
func Open(ctx context.Context, cfg *config.TokenizerConfig) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: tokenizer config is required", errorskg.ErrInvalidInput)
	}
	switch cfg.Source {
	case config.SourceFile:
		return nopCloser{source.NewFiles(cfg.VocabPath, cfg.MergesPath)}, nil
	case config.SourceTokenizerJSON:
		return nopCloser{source.NewTokenizerJSON(cfg.TokenizerPath)}, nil
	default:
		return OpenStore(ctx, cfg.Source)
	}
}

// OpenStore connects to the database backend named kind.
func OpenStore(ctx context.Context, kind string) (StoreBackend, error) {
	switch kind {
	case config.SourceRedis:
		s, err := redis.New(redis.ConfigFromEnv())
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		return s, nil
	case config.SourceMongo:
		s, err := mongo.New(ctx, mongo.ConfigFromEnv())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SourcePostgres:
		s, err := pg.New(ctx, pg.ConfigFromEnv())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a store backend (want %s, %s or %s)",
			errorskg.ErrInvalidInput, kind, config.SourceRedis, config.SourceMongo, config.SourcePostgres)
	}
}
