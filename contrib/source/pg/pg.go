// Package pg stores vocabulary and merge tables in PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/sweetpotato0/gptbpe/config"
	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/source"
	"github.com/sweetpotato0/gptbpe/vocab"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConfigFromEnv loads PostgreSQL configuration from environment variables
func ConfigFromEnv() *Config {
	return &Config{
		Host:     config.String("POSTGRES_HOST", "localhost"),
		Port:     config.Int("POSTGRES_PORT", 5432),
		User:     config.String("POSTGRES_USER", "postgres"),
		Password: config.String("POSTGRES_PASSWORD", ""),
		DBName:   config.String("POSTGRES_DB", "gptbpe"),
		SSLMode:  config.String("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN renders the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store implements source.Source and source.Store on top of PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ source.Source = (*Store)(nil)
	_ source.Store  = (*Store)(nil)
)

// New connects to PostgreSQL and creates the tables if needed.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	if err := config.ValidatePostgresConfig(cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS bpe_vocab (
		id INTEGER PRIMARY KEY,
		token TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS bpe_merges (
		rank INTEGER PRIMARY KEY,
		left_symbol TEXT NOT NULL,
		right_symbol TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// LoadVocabulary reads bpe_vocab in id order.
func (s *Store) LoadVocabulary(ctx context.Context) (*vocab.Vocabulary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, token FROM bpe_vocab ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	defer rows.Close()

	var entries []vocab.Entry
	for rows.Next() {
		var e vocab.Entry
		if err := rows.Scan(&e.ID, &e.Token); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vocabulary: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("table bpe_vocab: %w", errorskg.ErrNotFound)
	}

	v, err := vocab.New(entries)
	if err != nil {
		return nil, err
	}
	logging.WithComponent("source.pg").Info("vocabulary loaded", "tokens", v.Len())
	return v, nil
}

// LoadMerges reads bpe_merges in rank order. Ranks must be 0..n-1.
func (s *Store) LoadMerges(ctx context.Context) (*vocab.MergeRanks, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rank, left_symbol, right_symbol FROM bpe_merges ORDER BY rank`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merges: %w", err)
	}
	defer rows.Close()

	var rules []vocab.Pair
	for rows.Next() {
		var (
			rank int
			p    vocab.Pair
		)
		if err := rows.Scan(&rank, &p.Left, &p.Right); err != nil {
			return nil, fmt.Errorf("failed to scan merge row: %w", err)
		}
		if rank != len(rules) {
			return nil, fmt.Errorf("%w: expected rank %d, found %d", errorskg.ErrInvalidMerges, len(rules), rank)
		}
		rules = append(rules, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merges: %w", err)
	}

	m, err := vocab.NewMergeRanks(rules)
	if err != nil {
		return nil, err
	}
	logging.WithComponent("source.pg").Info("merges loaded", "rules", m.Len())
	return m, nil
}

// Store replaces both tables in one transaction using COPY.
func (s *Store) Store(ctx context.Context, v *vocab.Vocabulary, m *vocab.MergeRanks) (err error) {
	if v == nil || m == nil {
		return fmt.Errorf("%w: vocabulary and merges are required", errorskg.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `TRUNCATE bpe_vocab, bpe_merges`); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}

	entries := v.Entries()
	err = copyRows(ctx, tx, pq.CopyIn("bpe_vocab", "id", "token"), len(entries), func(i int) []any {
		return []any{entries[i].ID, entries[i].Token}
	})
	if err != nil {
		return fmt.Errorf("failed to copy vocabulary: %w", err)
	}

	rules := m.Rules()
	err = copyRows(ctx, tx, pq.CopyIn("bpe_merges", "rank", "left_symbol", "right_symbol"), len(rules), func(i int) []any {
		return []any{i, rules[i].Left, rules[i].Right}
	})
	if err != nil {
		return fmt.Errorf("failed to copy merges: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tables: %w", err)
	}
	logging.WithComponent("source.pg").Info("tables stored", "tokens", len(entries), "rules", len(rules))
	return nil
}

func copyRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	// flush the buffered COPY data
	_, err = stmt.ExecContext(ctx)
	return err
}

// Clear removes all rows from both tables.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE bpe_vocab, bpe_merges`); err != nil {
		return fmt.Errorf("failed to clear tables: %w", err)
	}
	return nil
}

// Ping checks if PostgreSQL connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the PostgreSQL connection
func (s *Store) Close() error {
	return s.db.Close()
}
