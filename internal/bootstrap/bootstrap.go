// Package bootstrap registers every collaborator cmd/server and cmd/worker
// share with the dig container, so both composition roots wire the same
// graph instead of drifting apart.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kristoman/standardgpt/internal/cache"
	"github.com/kristoman/standardgpt/internal/config"
	"github.com/kristoman/standardgpt/internal/conversationstore"
	"github.com/kristoman/standardgpt/internal/embedding"
	"github.com/kristoman/standardgpt/internal/handler"
	"github.com/kristoman/standardgpt/internal/keepalive"
	"github.com/kristoman/standardgpt/internal/llm"
	"github.com/kristoman/standardgpt/internal/memory"
	"github.com/kristoman/standardgpt/internal/orchestrator"
	"github.com/kristoman/standardgpt/internal/progressbus"
	"github.com/kristoman/standardgpt/internal/promptstore"
	"github.com/kristoman/standardgpt/internal/ratelimit"
	"github.com/kristoman/standardgpt/internal/search"
	"github.com/kristoman/standardgpt/internal/types"
)

// Provide registers every collaborator with container, mirroring the
// teacher's runtime.GetContainer() registration idiom.
func Provide(container *dig.Container, cfg *config.Config) error {
	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *promptstore.Store { return promptstore.New() },
		func() *memory.Store { return memory.New() },
		func() *progressbus.Bus { return progressbus.New() },
		newResponseCache,
		newEmbeddingCache,
		newLLMClient,
		newKeepaliveDaemon,
		newEmbeddingClient,
		newSearchBackend,
		newGormDB,
		newTitleGenerator,
		newConversationStore,
		newConversationNotifier,
		newLimiter,
		newAsynqClient,
		newOrchestrator,
		newHandlerDeps,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return fmt.Errorf("bootstrap: provide %T: %w", p, err)
		}
	}
	return nil
}

func newResponseCache(cfg *config.Config) *cache.Cache[string] {
	return cache.New[string](cache.WithDefaultTTL(cfg.CacheTimeout))
}

func newEmbeddingCache(cfg *config.Config) *cache.Cache[types.Embedding] {
	return cache.New[types.Embedding](cache.WithDefaultTTL(cfg.CacheTimeout), cache.WithMaxEntries(10000))
}

// respCacheAdapter satisfies llm.ResponseCache without exposing
// cache.Cache[string]'s full surface to the llm package.
type respCacheAdapter struct{ c *cache.Cache[string] }

func (a respCacheAdapter) Get(namespace, key string) (string, bool) { return a.c.Get(namespace, key) }
func (a respCacheAdapter) Set(key string, value string)             { a.c.Set(key, value) }

func newLLMClient(cfg *config.Config, respCache *cache.Cache[string]) *llm.Client {
	return llm.New(cfg.OpenAI.APIKey, "", cfg.OpenAI.ModelDefault, respCacheAdapter{respCache})
}

func newKeepaliveDaemon(cfg *config.Config) *keepalive.Daemon {
	interval := time.Duration(cfg.Embedding.KeepaliveIntervalMinutes) * time.Minute
	return keepalive.New(cfg.Embedding.APIEndpoint, interval, cfg.Embedding.KeepaliveEnabled)
}

// embedCacheAdapter satisfies embedding.ResponseCache without exposing
// cache.Cache[types.Embedding]'s full surface to the embedding package.
type embedCacheAdapter struct{ c *cache.Cache[types.Embedding] }

func (a embedCacheAdapter) Get(namespace, key string) (types.Embedding, bool) {
	return a.c.Get(namespace, key)
}
func (a embedCacheAdapter) Set(key string, value types.Embedding) { a.c.Set(key, value) }

func newEmbeddingClient(cfg *config.Config, embedCache *cache.Cache[types.Embedding], daemon *keepalive.Daemon) (*embedding.Client, error) {
	return embedding.New(embedding.Config{
		ExternalEndpoint: cfg.Embedding.APIEndpoint,
		ExternalAPIKey:   cfg.Embedding.APIKey,
		Cache:            embedCacheAdapter{embedCache},
		Activity:         daemon,
		PoolSize:         8,
	})
}

func newSearchBackend(cfg *config.Config) (search.Backend, error) {
	return search.NewBackend(
		cfg.VectorDatabase.Driver,
		[]string{cfg.Elasticsearch.URL},
		cfg.Elasticsearch.APIKey,
		cfg.Elasticsearch.Index,
		cfg.VectorDatabase.URL,
		6334,
		cfg.Elasticsearch.Index,
	)
}

func newGormDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.ConversationDB.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open conversation database: %w", err)
	}
	if err := conversationstore.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTitleGenerator(llmClient *llm.Client) *conversationstore.TitleGenerator {
	return &conversationstore.TitleGenerator{LLM: llmClient}
}

func newConversationStore(db *gorm.DB, titles *conversationstore.TitleGenerator) conversationstore.Store {
	return conversationstore.NewGormStore(db, titles)
}

func newConversationNotifier(store conversationstore.Store) orchestrator.ConversationNotifier {
	return handler.NewStoreNotifier(store, handler.UserIDFromContext)
}

func newLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	rate := ratelimit.ParseRate(cfg.RateLimit.Default)
	if cfg.RateLimit.StorageURL == "" {
		return ratelimit.NewInProcess(rate), nil
	}
	return ratelimit.NewRedis(cfg.RateLimit.StorageURL, rate)
}

// newAsynqClient returns nil when no shared queue is configured, so the
// stream handler falls back to running the orchestrator in-process.
func newAsynqClient(cfg *config.Config) *asynq.Client {
	if cfg.RateLimit.StorageURL == "" {
		return nil
	}
	opt, err := asynq.ParseRedisURI(cfg.RateLimit.StorageURL)
	if err != nil {
		return nil
	}
	return asynq.NewClient(opt)
}

func newOrchestrator(
	llmClient *llm.Client,
	embedder *embedding.Client,
	searchBackend search.Backend,
	mem *memory.Store,
	bus *progressbus.Bus,
	prompts *promptstore.Store,
	notifier orchestrator.ConversationNotifier,
	cfg *config.Config,
) *orchestrator.Orchestrator {
	return orchestrator.New(llmClient, embedder, searchBackend, mem, bus, prompts, notifier, cfg.ResponseTimeout)
}

func newHandlerDeps(
	o *orchestrator.Orchestrator,
	store conversationstore.Store,
	bus *progressbus.Bus,
	mem *memory.Store,
	asynqClient *asynq.Client,
	limiter ratelimit.Limiter,
	cfg *config.Config,
) handler.Deps {
	return handler.Deps{
		Query:         handler.NewQueryHandler(o, store),
		Stream:        handler.NewStreamHandler(o, store, bus, asynqClient),
		Session:       handler.NewSessionHandler(mem, store),
		Conversations: handler.NewConversationsHandler(store),
		System:        handler.NewSystemHandler(cfg),
		JWTSecret:     cfg.JWTSecret,
		Limiter:       limiter,
	}
}
