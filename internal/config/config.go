// Package config loads the process configuration from the environment (and
// an optional config.yaml overlay) using viper, matching the teacher's
// config-loading convention.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kristoman/standardgpt/internal/errors"
	"github.com/spf13/viper"
)

// ElasticsearchConfig configures the Elasticsearch search backend.
type ElasticsearchConfig struct {
	URL    string
	Index  string
	APIKey string
}

// EmbeddingConfig configures the external embedding endpoint and its
// keep-alive behaviour.
type EmbeddingConfig struct {
	APIEndpoint              string
	APIKey                   string
	KeepaliveEnabled         bool
	KeepaliveIntervalMinutes int
}

// OpenAIConfig configures the chat-completion provider.
type OpenAIConfig struct {
	APIKey           string
	Model            string
	ModelDefault     string
	ModelAnswer      string
	MaxTokensDefault int
	MaxTokensAnswer  int
	Temperature      float64
}

// VectorDatabaseConfig selects and configures the SearchClient backend.
type VectorDatabaseConfig struct {
	Driver string // "elasticsearch" (default) or "qdrant"
	URL    string
	APIKey string
}

// RateLimitConfig configures the HTTP-layer rate limiter.
type RateLimitConfig struct {
	Default     string
	StorageURL  string
}

// ConversationDBConfig configures the persisted ConversationStore.
type ConversationDBConfig struct {
	DSN string
}

// Config is the fully-resolved process configuration.
type Config struct {
	Elasticsearch    ElasticsearchConfig
	Embedding        EmbeddingConfig
	OpenAI           OpenAIConfig
	VectorDatabase   VectorDatabaseConfig
	RateLimit        RateLimitConfig
	ConversationDB   ConversationDBConfig

	MaxQuestionLength int
	MinQuestionLength int
	ResponseTimeout   time.Duration
	MaxSearchResults  int
	CacheTimeout      time.Duration

	JWTSecret string
}

// Load reads configuration from the environment and validates the fatal
// startup requirements of spec.md §6.3.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional overlay; absence is not an error

	v.SetDefault("MAX_QUESTION_LENGTH", 1000)
	v.SetDefault("MIN_QUESTION_LENGTH", 3)
	v.SetDefault("RESPONSE_TIMEOUT", 45)
	v.SetDefault("MAX_SEARCH_RESULTS", 80)
	v.SetDefault("CACHE_TIMEOUT", 900)
	v.SetDefault("RATELIMIT_DEFAULT", "10/minute")
	v.SetDefault("OPENAI_MODEL_DEFAULT", "gpt-4o-mini")
	v.SetDefault("OPENAI_MODEL_ANSWER", "gpt-4o")
	v.SetDefault("OPENAI_MAX_TOKENS_DEFAULT", 4000)
	v.SetDefault("OPENAI_MAX_TOKENS_ANSWER", 1200)
	v.SetDefault("OPENAI_TEMPERATURE", 0.0)
	v.SetDefault("EMBEDDING_KEEPALIVE_ENABLED", true)
	v.SetDefault("EMBEDDING_KEEPALIVE_INTERVAL_MINUTES", 10)
	v.SetDefault("VECTOR_DATABASE_DRIVER", "elasticsearch")

	cfg := &Config{
		Elasticsearch: ElasticsearchConfig{
			URL:    v.GetString("ELASTICSEARCH_URL"),
			Index:  v.GetString("ELASTICSEARCH_INDEX"),
			APIKey: v.GetString("ELASTICSEARCH_API_KEY"),
		},
		Embedding: EmbeddingConfig{
			APIEndpoint:              v.GetString("EMBEDDING_API_ENDPOINT"),
			APIKey:                   v.GetString("EMBEDDING_API_KEY"),
			KeepaliveEnabled:         v.GetBool("EMBEDDING_KEEPALIVE_ENABLED"),
			KeepaliveIntervalMinutes: v.GetInt("EMBEDDING_KEEPALIVE_INTERVAL_MINUTES"),
		},
		OpenAI: OpenAIConfig{
			APIKey:           v.GetString("OPENAI_API_KEY"),
			Model:            v.GetString("OPENAI_MODEL"),
			ModelDefault:     v.GetString("OPENAI_MODEL_DEFAULT"),
			ModelAnswer:      v.GetString("OPENAI_MODEL_ANSWER"),
			MaxTokensDefault: v.GetInt("OPENAI_MAX_TOKENS_DEFAULT"),
			MaxTokensAnswer:  v.GetInt("OPENAI_MAX_TOKENS_ANSWER"),
			Temperature:      v.GetFloat64("OPENAI_TEMPERATURE"),
		},
		VectorDatabase: VectorDatabaseConfig{
			Driver: v.GetString("VECTOR_DATABASE_DRIVER"),
			URL:    v.GetString("VECTOR_DATABASE_URL"),
			APIKey: v.GetString("VECTOR_DATABASE_API_KEY"),
		},
		RateLimit: RateLimitConfig{
			Default:    v.GetString("RATELIMIT_DEFAULT"),
			StorageURL: v.GetString("RATELIMIT_STORAGE_URL"),
		},
		ConversationDB: ConversationDBConfig{
			DSN: v.GetString("CONVERSATION_DB_DSN"),
		},
		MaxQuestionLength: v.GetInt("MAX_QUESTION_LENGTH"),
		MinQuestionLength: v.GetInt("MIN_QUESTION_LENGTH"),
		ResponseTimeout:   time.Duration(v.GetInt("RESPONSE_TIMEOUT")) * time.Second,
		MaxSearchResults:  v.GetInt("MAX_SEARCH_RESULTS"),
		CacheTimeout:      time.Duration(v.GetInt("CACHE_TIMEOUT")) * time.Second,
		JWTSecret:         v.GetString("JWT_SECRET"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the fatal-startup-error set of spec.md §6.3: missing
// OPENAI_API_KEY or EMBEDDING_API_ENDPOINT aborts the process, and so does a
// missing ELASTICSEARCH_API_KEY when the elasticsearch driver is selected
// (the qdrant driver does not need it).
func (c *Config) validate() error {
	var missing []string
	if c.Elasticsearch.APIKey == "" && c.VectorDatabase.Driver == "elasticsearch" {
		missing = append(missing, "ELASTICSEARCH_API_KEY")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Embedding.APIEndpoint == "" {
		missing = append(missing, "EMBEDDING_API_ENDPOINT")
	}
	if len(missing) > 0 {
		return errors.NewConfigError(fmt.Sprintf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	return nil
}
