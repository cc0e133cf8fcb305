// Package redis stores vocabulary and merge tables in Redis: a hash
// <prefix>vocab (token -> id) and a list <prefix>merges ("left right", rank order).
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sweetpotato0/gptbpe/config"
	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/source"
	"github.com/sweetpotato0/gptbpe/vocab"
)

// writeBatch bounds the number of fields or list items sent per command.
const writeBatch = 1000

// Config holds Redis configuration
type Config struct {
	Addr     string // Redis server address (e.g., "localhost:6379")
	Password string
	DB       int
	Prefix   string // Key prefix for namespacing
}

// ConfigFromEnv loads Redis configuration from environment variables
func ConfigFromEnv() *Config {
	return &Config{
		Addr:     config.String("REDIS_ADDR", "localhost:6379"),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
		Prefix:   config.String("REDIS_PREFIX", "gptbpe:gpt2:"),
	}
}

// Store implements source.Source and source.Store on top of Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var (
	_ source.Source = (*Store)(nil)
	_ source.Store  = (*Store)(nil)
)

// New creates a Redis-backed table store.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	if err := config.ValidateRedisConfig(cfg.Addr, cfg.DB, cfg.Prefix); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: client, prefix: cfg.Prefix}, nil
}

func (s *Store) vocabKey() string  { return s.prefix + "vocab" }
func (s *Store) mergesKey() string { return s.prefix + "merges" }

// LoadVocabulary reads the vocabulary hash.
func (s *Store) LoadVocabulary(ctx context.Context) (*vocab.Vocabulary, error) {
	fields, err := s.client.HGetAll(ctx, s.vocabKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("vocabulary %s: %w", s.vocabKey(), errorskg.ErrNotFound)
	}

	entries := make([]vocab.Entry, 0, len(fields))
	for tok, raw := range fields {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: id of %q is %q", errorskg.ErrInvalidVocabulary, tok, raw)
		}
		entries = append(entries, vocab.Entry{Token: tok, ID: id})
	}

	v, err := vocab.New(entries)
	if err != nil {
		return nil, err
	}
	logging.WithComponent("source.redis").Info("vocabulary loaded", "key", s.vocabKey(), "tokens", v.Len())
	return v, nil
}

// LoadMerges reads the merges list; list position is the rank.
func (s *Store) LoadMerges(ctx context.Context) (*vocab.MergeRanks, error) {
	// Redis drops empty lists, so an empty merge table only exists next to its vocabulary.
	n, err := s.client.Exists(ctx, s.mergesKey(), s.vocabKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read merges from Redis: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("merges %s: %w", s.mergesKey(), errorskg.ErrNotFound)
	}

	items, err := s.client.LRange(ctx, s.mergesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read merges from Redis: %w", err)
	}

	rules := make([]vocab.Pair, 0, len(items))
	for i, item := range items {
		left, right, ok := strings.Cut(item, " ")
		if !ok {
			return nil, fmt.Errorf("%w: rule %d is %q", errorskg.ErrInvalidMerges, i, item)
		}
		rules = append(rules, vocab.Pair{Left: left, Right: right})
	}

	m, err := vocab.NewMergeRanks(rules)
	if err != nil {
		return nil, err
	}
	logging.WithComponent("source.redis").Info("merges loaded", "key", s.mergesKey(), "rules", m.Len())
	return m, nil
}

// Store replaces both tables in one MULTI/EXEC transaction.
func (s *Store) Store(ctx context.Context, v *vocab.Vocabulary, m *vocab.MergeRanks) error {
	if v == nil || m == nil {
		return fmt.Errorf("%w: vocabulary and merges are required", errorskg.ErrInvalidInput)
	}

	entries := v.Entries()
	rules := m.Rules()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.vocabKey(), s.mergesKey())

		for start := 0; start < len(entries); start += writeBatch {
			end := min(start+writeBatch, len(entries))
			values := make([]any, 0, 2*(end-start))
			for _, e := range entries[start:end] {
				values = append(values, e.Token, e.ID)
			}
			pipe.HSet(ctx, s.vocabKey(), values...)
		}

		for start := 0; start < len(rules); start += writeBatch {
			end := min(start+writeBatch, len(rules))
			values := make([]any, 0, end-start)
			for _, p := range rules[start:end] {
				values = append(values, p.Left+" "+p.Right)
			}
			pipe.RPush(ctx, s.mergesKey(), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store tables in Redis: %w", err)
	}

	logging.WithComponent("source.redis").Info("tables stored",
		"prefix", s.prefix, "tokens", len(entries), "rules", len(rules))
	return nil
}

// Clear removes both tables.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.vocabKey(), s.mergesKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete tables: %w", err)
	}
	return nil
}

// Ping checks if Redis connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
