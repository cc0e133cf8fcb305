package config

// Source names understood by TokenizerConfig.Source.
const (
	SourceFile          = "file"
	SourceTokenizerJSON = "tokenizer-json"
	SourceRedis         = "redis"
	SourceMongo         = "mongo"
	SourcePostgres      = "postgres"
)

// Unknown id policies understood by TokenizerConfig.UnknownID.
const (
	UnknownIDFail        = "fail"
	UnknownIDPlaceholder = "placeholder"
)

// TokenizerConfig describes where the tables come from and how the tokenizer behaves.
type TokenizerConfig struct {
	Source        string
	VocabPath     string
	MergesPath    string
	TokenizerPath string
	UnknownID     string
	Placeholder   string
	CacheSize     int
	Concurrency   int
	Strict        bool
}

// TokenizerConfigFromEnv loads the tokenizer configuration from GPTBPE_* variables.
func TokenizerConfigFromEnv() *TokenizerConfig {
	return &TokenizerConfig{
		Source:        String("GPTBPE_SOURCE", SourceFile),
		VocabPath:     String("GPTBPE_VOCAB", "testdata/gpt2/vocab.json"),
		MergesPath:    String("GPTBPE_MERGES", "testdata/gpt2/merges.txt"),
		TokenizerPath: String("GPTBPE_TOKENIZER_JSON", ""),
		UnknownID:     String("GPTBPE_UNKNOWN_ID", UnknownIDFail),
		Placeholder:   String("GPTBPE_PLACEHOLDER", ""),
		CacheSize:     Int("GPTBPE_CACHE_SIZE", 0),
		Concurrency:   Int("GPTBPE_CONCURRENCY", 8),
		Strict:        Bool("GPTBPE_STRICT", false),
	}
}

// Validate checks the fields the selected source needs.
func (c *TokenizerConfig) Validate() error {
	v := NewValidator()

	v.ValidateOneOf("source", c.Source, SourceFile, SourceTokenizerJSON, SourceRedis, SourceMongo, SourcePostgres)
	switch c.Source {
	case SourceFile:
		v.RequireNonEmpty("vocabPath", c.VocabPath)
		v.RequireNonEmpty("mergesPath", c.MergesPath)
	case SourceTokenizerJSON:
		v.RequireNonEmpty("tokenizerPath", c.TokenizerPath)
	}
	v.ValidateOneOf("unknownID", c.UnknownID, UnknownIDFail, UnknownIDPlaceholder)
	v.RequireNonNegative("cacheSize", c.CacheSize)
	v.RequirePositive("concurrency", c.Concurrency)

	return v.Error()
}
