// Package embedding turns text into vectors, preferring an external
// HTTP endpoint and falling back to an internal Ollama-backed provider.
// Grounded on internal/models/embedding/embedder.go's Embedder/
// EmbedderPooler split and internal/models/embedding/jina.go's
// multi-response-shape JSON parsing.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/panjf2000/ants/v2"

	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/types"
)

// attemptTimeouts are the progressive per-attempt timeouts of spec.md §4.5:
// 30s, 45s, 60s across 3 attempts.
var attemptTimeouts = []time.Duration{30 * time.Second, 45 * time.Second, 60 * time.Second}

// ResponseCache is the subset of cache.Cache[types.Embedding] the client
// needs.
type ResponseCache interface {
	Get(namespace, key string) (types.Embedding, bool)
	Set(key string, value types.Embedding)
}

// Activity is notified whenever the external endpoint is actually called,
// so the keepalive daemon (§4.11) can tell whether the endpoint is idle.
type Activity interface {
	Touch()
}

type noopActivity struct{}

func (noopActivity) Touch() {}

// Client implements spec.md §4.5's Embed algorithm: cache, then external
// HTTP endpoint with progressive timeouts, then internal Ollama fallback.
type Client struct {
	externalEndpoint string
	externalAPIKey   string
	httpClient       *http.Client

	ollama    *api.Client
	ollamaModel string

	cache    ResponseCache
	activity Activity

	pool *ants.Pool
}

// Config configures a Client.
type Config struct {
	// ExternalEndpoint is the HTTP embedding endpoint. Empty or the literal
	// "INTERNAL" means the external tier is skipped entirely.
	ExternalEndpoint string
	ExternalAPIKey   string

	OllamaBaseURL string
	OllamaModel   string

	Cache    ResponseCache
	Activity Activity

	// PoolSize bounds BatchEmbed concurrency; zero creates no pool and
	// BatchEmbed embeds sequentially.
	PoolSize int
}

// New constructs a Client. When cfg.PoolSize is zero no worker pool is
// created, and BatchEmbed falls back to sequential embedding.
func New(cfg Config) (*Client, error) {
	activity := cfg.Activity
	if activity == nil {
		activity = noopActivity{}
	}

	var pool *ants.Pool
	if cfg.PoolSize > 0 {
		p, err := ants.NewPool(cfg.PoolSize, ants.WithNonblocking(false))
		if err != nil {
			return nil, fmt.Errorf("embedding: failed to create worker pool: %w", err)
		}
		pool = p
	}

	ollamaClient, err := newOllamaClient(cfg.OllamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to construct ollama client: %w", err)
	}

	return &Client{
		externalEndpoint: cfg.ExternalEndpoint,
		externalAPIKey:   cfg.ExternalAPIKey,
		httpClient:       &http.Client{},
		ollama:           ollamaClient,
		ollamaModel:      cfg.OllamaModel,
		cache:            cfg.Cache,
		activity:         activity,
		pool:             pool,
	}, nil
}

func newOllamaClient(baseURL string) (*api.Client, error) {
	if baseURL == "" {
		return api.ClientFromEnvironment()
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return api.NewClient(parsed, http.DefaultClient), nil
}

// usesExternal reports whether the external HTTP tier is configured.
func (c *Client) usesExternal() bool {
	return c.externalEndpoint != "" && !strings.EqualFold(c.externalEndpoint, "INTERNAL")
}

// Embed returns the embedding for text, or nil if every tier failed. The
// pipeline treats a nil embedding as "continue without a vector" rather
// than a fatal error. External and internal results are cached under
// distinct key prefixes per spec.md §4.5, since the two tiers may use
// different models and are not interchangeable.
func (c *Client) Embed(ctx context.Context, text string) types.Embedding {
	digest := fmt.Sprintf("%x", hashText(text))
	externalKey := "embedding:external:" + digest
	internalKey := "embedding:internal:" + digest

	if c.usesExternal() {
		if c.cache != nil {
			if v, ok := c.cache.Get("embedding", externalKey); ok {
				return v
			}
		}
		if vec := c.embedExternal(ctx, text); vec != nil {
			if c.cache != nil {
				c.cache.Set(externalKey, vec)
			}
			return vec
		}
	}

	if c.cache != nil {
		if v, ok := c.cache.Get("embedding", internalKey); ok {
			return v
		}
	}
	vec := c.embedInternal(ctx, text)
	if vec != nil && c.cache != nil {
		c.cache.Set(internalKey, vec)
	}
	return vec
}

// BatchEmbed embeds every text in texts, bounding concurrency with the
// configured ants pool when present (mirrors the teacher's
// EmbedderPooler.BatchEmbedWithPool contract).
func (c *Client) BatchEmbed(ctx context.Context, texts []string) []types.Embedding {
	out := make([]types.Embedding, len(texts))
	if c.pool == nil {
		for i, t := range texts {
			out[i] = c.Embed(ctx, t)
		}
		return out
	}

	done := make(chan struct{}, len(texts))
	for i, t := range texts {
		i, t := i, t
		submitErr := c.pool.Submit(func() {
			out[i] = c.Embed(ctx, t)
			done <- struct{}{}
		})
		if submitErr != nil {
			out[i] = c.Embed(ctx, t)
			done <- struct{}{}
		}
	}
	for range texts {
		<-done
	}
	return out
}

func hashText(text string) []byte {
	sum := fnv1a(text)
	return sum
}

func fnv1a(s string) []byte {
	const offset uint64 = 14695981039346656037
	const prime uint64 = 1099511628211
	h := offset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(h)
		h >>= 8
	}
	return b
}

// embedExternal calls the external HTTP endpoint with up to 3 attempts at
// progressively longer timeouts, parsing whichever of the four accepted
// response shapes is present.
func (c *Client) embedExternal(ctx context.Context, text string) types.Embedding {
	c.activity.Touch()

	body, err := json.Marshal(map[string]interface{}{"input": []string{text}})
	if err != nil {
		return nil
	}

	for attempt, timeout := range attemptTimeouts {
		vec, err := c.tryExternal(ctx, body, timeout)
		if err == nil {
			return vec
		}
		logger.Warnf(ctx, "embedding: external attempt %d failed: %v", attempt+1, err)
	}
	return nil
}

func (c *Client) tryExternal(ctx context.Context, body []byte, timeout time.Duration) (types.Embedding, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.externalEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.externalAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.externalAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseResponseShape(raw)
}

// parseResponseShape accepts the four response shapes of spec.md §4.5,
// first-match-wins in the order listed there.
func parseResponseShape(raw []byte) (types.Embedding, error) {
	var vectors struct {
		Vectors [][]float32 `json:"vectors"`
	}
	if err := json.Unmarshal(raw, &vectors); err == nil && len(vectors.Vectors) > 0 {
		return types.Embedding(vectors.Vectors[0]), nil
	}

	var vector struct {
		Vector []float32 `json:"vector"`
	}
	if err := json.Unmarshal(raw, &vector); err == nil && len(vector.Vector) > 0 {
		return types.Embedding(vector.Vector), nil
	}

	var data struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &data); err == nil && len(data.Data) > 0 && len(data.Data[0].Embedding) > 0 {
		return types.Embedding(data.Data[0].Embedding), nil
	}

	var bare []float32
	if err := json.Unmarshal(raw, &bare); err == nil && len(bare) > 0 {
		return types.Embedding(bare), nil
	}

	return nil, fmt.Errorf("embedding: response matched none of the four accepted shapes")
}

// embedInternal uses the Ollama-backed internal provider.
func (c *Client) embedInternal(ctx context.Context, text string) types.Embedding {
	if c.ollama == nil {
		return nil
	}
	resp, err := c.ollama.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  c.ollamaModel,
		Prompt: text,
	})
	if err != nil {
		logger.Warnf(ctx, "embedding: internal ollama fallback failed: %v", err)
		return nil
	}
	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out
}
