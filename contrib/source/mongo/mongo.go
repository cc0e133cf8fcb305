// Package mongo stores vocabulary and merge tables in MongoDB collections.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/sweetpotato0/gptbpe/config"
	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/source"
	"github.com/sweetpotato0/gptbpe/vocab"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const insertBatch = 5000

// Config holds MongoDB connection configuration
type Config struct {
	URI               string
	Database          string
	VocabCollection   string
	MergesCollection  string
	ConnectionTimeout time.Duration
}

// ConfigFromEnv loads MongoDB configuration from environment variables
func ConfigFromEnv() *Config {
	return &Config{
		URI:               config.String("MONGODB_URI", "mongodb://localhost:27017"),
		Database:          config.String("MONGODB_DB", "gptbpe"),
		VocabCollection:   config.String("MONGODB_VOCAB_COLLECTION", "vocab"),
		MergesCollection:  config.String("MONGODB_MERGES_COLLECTION", "merges"),
		ConnectionTimeout: config.Duration("MONGODB_TIMEOUT", 10*time.Second),
	}
}

// vocabDoc is one vocabulary entry; the id is the document key.
type vocabDoc struct {
	ID    int    `bson:"_id"`
	Token string `bson:"token"`
}

// mergeDoc is one merge rule; the rank is the document key.
type mergeDoc struct {
	Rank  int    `bson:"_id"`
	Left  string `bson:"left"`
	Right string `bson:"right"`
}

// Store implements source.Source and source.Store on top of MongoDB.
type Store struct {
	client *mongo.Client
	vocab  *mongo.Collection
	merges *mongo.Collection
}

var (
	_ source.Source = (*Store)(nil)
	_ source.Store  = (*Store)(nil)
)

// New connects to MongoDB and checks the connection.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	if err := config.ValidateMongoDBConfig(cfg.URI, cfg.Database); err != nil {
		return nil, err
	}
	if cfg.VocabCollection == "" {
		cfg.VocabCollection = "vocab"
	}
	if cfg.MergesCollection == "" {
		cfg.MergesCollection = "merges"
	}
	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client: client,
		vocab:  db.Collection(cfg.VocabCollection),
		merges: db.Collection(cfg.MergesCollection),
	}

	// token lookups from admin tooling; ids and ranks are already the primary key
	_, err = s.vocab.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// LoadVocabulary reads every vocabulary document in id order.
func (s *Store) LoadVocabulary(ctx context.Context) (*vocab.Vocabulary, error) {
	cursor, err := s.vocab.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []vocabDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("vocabulary collection %s: %w", s.vocab.Name(), errorskg.ErrNotFound)
	}

	entries := make([]vocab.Entry, len(docs))
	for i, d := range docs {
		entries[i] = vocab.Entry{Token: d.Token, ID: d.ID}
	}
	v, err := vocab.New(entries)
	if err != nil {
		return nil, err
	}
	logging.WithComponent("source.mongo").Info("vocabulary loaded", "collection", s.vocab.Name(), "tokens", v.Len())
	return v, nil
}

// LoadMerges reads every merge document in rank order. Ranks must be 0..n-1.
func (s *Store) LoadMerges(ctx context.Context) (*vocab.MergeRanks, error) {
	cursor, err := s.merges.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to read merges: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mergeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode merges: %w", err)
	}
	if len(docs) == 0 {
		n, err := s.vocab.EstimatedDocumentCount(ctx)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("merges collection %s: %w", s.merges.Name(), errorskg.ErrNotFound)
		}
	}

	rules := make([]vocab.Pair, len(docs))
	for i, d := range docs {
		if d.Rank != i {
			return nil, fmt.Errorf("%w: expected rank %d, found %d", errorskg.ErrInvalidMerges, i, d.Rank)
		}
		rules[i] = vocab.Pair{Left: d.Left, Right: d.Right}
	}
	m, err := vocab.NewMergeRanks(rules)
	if err != nil {
		return nil, err
	}
	logging.WithComponent("source.mongo").Info("merges loaded", "collection", s.merges.Name(), "rules", m.Len())
	return m, nil
}

// Store replaces both collections' contents.
func (s *Store) Store(ctx context.Context, v *vocab.Vocabulary, m *vocab.MergeRanks) error {
	if v == nil || m == nil {
		return fmt.Errorf("%w: vocabulary and merges are required", errorskg.ErrInvalidInput)
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}

	entries := v.Entries()
	docs := make([]interface{}, 0, insertBatch)
	for i, e := range entries {
		docs = append(docs, vocabDoc{ID: e.ID, Token: e.Token})
		if len(docs) == insertBatch || i == len(entries)-1 {
			if _, err := s.vocab.InsertMany(ctx, docs); err != nil {
				return fmt.Errorf("failed to insert vocabulary: %w", err)
			}
			docs = docs[:0]
		}
	}

	rules := m.Rules()
	for i, p := range rules {
		docs = append(docs, mergeDoc{Rank: i, Left: p.Left, Right: p.Right})
		if len(docs) == insertBatch || i == len(rules)-1 {
			if _, err := s.merges.InsertMany(ctx, docs); err != nil {
				return fmt.Errorf("failed to insert merges: %w", err)
			}
			docs = docs[:0]
		}
	}

	logging.WithComponent("source.mongo").Info("tables stored", "tokens", len(entries), "rules", len(rules))
	return nil
}

// Clear removes all documents from both collections.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.vocab.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear vocabulary: %w", err)
	}
	if _, err := s.merges.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear merges: %w", err)
	}
	return nil
}

// Ping checks if MongoDB connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
