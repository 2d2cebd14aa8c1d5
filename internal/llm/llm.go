// Package llm wraps an external chat-completion API with per-namespace
// defaults, a response cache, and bounded retries, grounded on the
// teacher's internal/models/chat/ollama.go channel-based streaming idiom
// and internal/models/provider's ProviderInfo/Register registry.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	appErrors "github.com/kristoman/standardgpt/internal/errors"
	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/promptstore"
)

// Namespace identifies which of the fixed prompt call sites is in use,
// matching promptstore.Name one for one.
type Namespace = promptstore.Name

// NamespaceConfig holds the default opts for one namespace, per spec.md
// §4.4's table.
type NamespaceConfig struct {
	MinTokens   int
	MaxTokens   int
	Temperature float32
	TTL         time.Duration
	SystemRole  string
}

// Defaults is the fixed namespace config table.
var Defaults = map[Namespace]NamespaceConfig{
	promptstore.Analysis: {
		MinTokens: 20, MaxTokens: 4000, Temperature: 0.0, TTL: 3600 * time.Second,
		SystemRole: "Return exactly one of: including/without/personal/memory",
	},
	promptstore.ExtractStandard: {
		MinTokens: 100, MaxTokens: 4000, Temperature: 0.0, TTL: 1800 * time.Second,
		SystemRole: "Return only standard numbers, comma separated",
	},
	promptstore.ExtractFromMemory: {
		MinTokens: 100, MaxTokens: 4000, Temperature: 0.0, TTL: 900 * time.Second,
		SystemRole: "Return only standard numbers, comma separated, scoped to memory context",
	},
	promptstore.OptimizeSemantic: {
		MinTokens: 200, MaxTokens: 4000, Temperature: 0.3, TTL: 1800 * time.Second,
		SystemRole: "Optimise for semantic search",
	},
	promptstore.OptimizeTextual: {
		MinTokens: 150, MaxTokens: 4000, Temperature: 0.2, TTL: 1800 * time.Second,
		SystemRole: "Extract key textual terms",
	},
	promptstore.Answer: {
		MinTokens: 1200, MaxTokens: 1200, Temperature: 0.0, TTL: 900 * time.Second,
		SystemRole: "Answer in Norwegian; grounded in provided chunks",
	},
}

// Message is a single chat turn.
type Message struct {
	Role    string
	Content string
}

// CallOpts overrides a namespace's defaults for one call.
type CallOpts struct {
	MaxTokens   int
	Temperature float32
	ResponseFormat *openai.ChatCompletionResponseFormat
}

// StreamToken is one delta emitted by Stream.
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

// ResponseCache is the subset of cache.Cache[string] the client needs,
// kept as an interface so callers can swap in any conforming
// implementation (spec.md §9 "Caches as interface-typed collaborators").
type ResponseCache interface {
	Get(namespace, key string) (string, bool)
	Set(key string, value string)
}

// Client wraps an OpenAI-compatible chat-completion endpoint.
type Client struct {
	oa      *openai.Client
	model   string
	cache   ResponseCache
	limiter *rate.Limiter
}

// New constructs a Client against an OpenAI-compatible endpoint. baseURL
// may point at any OpenAI-compatible gateway; model is the provider model
// identifier, a configuration input per spec.md §4.4.
func New(apiKey, baseURL, model string, cache ResponseCache) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		oa:      openai.NewClientWithConfig(cfg),
		model:   model,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(20), 20),
	}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *Client) buildMessages(systemRole string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemRole != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemRole})
	}
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Call makes a cache-aware, non-streaming chat completion in namespace ns.
// opts, when non-nil, override the namespace defaults. Transient upstream
// errors are retried up to 3 times with bounded exponential backoff.
func (c *Client) Call(ctx context.Context, ns Namespace, cacheKey string, messages []Message, opts *CallOpts) (string, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(string(ns), cacheKey); ok {
			return cached, nil
		}
	}

	def, ok := Defaults[ns]
	if !ok {
		return "", appErrors.NewConfigError(fmt.Sprintf("llm: unknown namespace %q", ns))
	}

	maxTokens := def.MaxTokens
	temperature := def.Temperature
	if opts != nil {
		if opts.MaxTokens > 0 {
			maxTokens = clamp(opts.MaxTokens, def.MinTokens, def.MaxTokens)
		}
		temperature = opts.Temperature
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.buildMessages(def.SystemRole, messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if opts != nil && opts.ResponseFormat != nil {
		req.ResponseFormat = opts.ResponseFormat
	}

	var resp openai.ChatCompletionResponse
	var err error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 4; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", appErrors.NewUpstreamTransientError("llm: rate limiter wait cancelled", err)
		}

		resp, err = c.oa.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isTransient(err) || attempt == 3 {
			return "", appErrors.NewUpstreamFatalError(fmt.Sprintf("llm: chat completion failed after %d attempt(s)", attempt+1), err)
		}
		logger.Warnf(ctx, "llm: transient error on attempt %d for namespace %s: %v", attempt+1, ns, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", appErrors.NewUpstreamTransientError("llm: context cancelled during backoff", ctx.Err())
		}
		backoff *= 2
	}

	if len(resp.Choices) == 0 {
		return "", appErrors.NewUpstreamFatalError("llm: empty completion response", nil)
	}
	text := resp.Choices[0].Message.Content

	if c.cache != nil {
		c.cache.Set(cacheKey, text)
	}
	return text, nil
}

// CallRaw makes a single, uncached, non-retried chat completion outside the
// fixed namespace table, for ad-hoc call sites with their own token/
// temperature budget (e.g. conversation title generation, grounded on
// original_source/src/session_manager.py's generate_ai_title, which issues
// its own one-off OpenAI call with max_tokens=25/temperature=0.2 rather
// than going through the six analysis/answer prompts). The caller is
// expected to bound ctx with its own deadline.
func (c *Client) CallRaw(ctx context.Context, messages []Message, maxTokens int, temperature float32) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", appErrors.NewUpstreamTransientError("llm: rate limiter wait cancelled", err)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.buildMessages("", messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	resp, err := c.oa.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", appErrors.NewUpstreamFatalError("llm: ad-hoc chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", appErrors.NewUpstreamFatalError("llm: empty completion response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream makes a streaming chat completion in namespace ns. Unlike Call it
// never reads or writes the cache; a failure mid-stream is reported as a
// fatal error on the returned channel and the channel is then closed.
func (c *Client) Stream(ctx context.Context, ns Namespace, messages []Message) (<-chan StreamToken, error) {
	def, ok := Defaults[ns]
	if !ok {
		return nil, appErrors.NewConfigError(fmt.Sprintf("llm: unknown namespace %q", ns))
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.buildMessages(def.SystemRole, messages),
		MaxTokens:   def.MaxTokens,
		Temperature: def.Temperature,
		Stream:      true,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, appErrors.NewUpstreamTransientError("llm: rate limiter wait cancelled", err)
	}

	stream, err := c.oa.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, appErrors.NewUpstreamFatalError("llm: failed to open completion stream", err)
	}

	out := make(chan StreamToken)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				out <- StreamToken{Done: true}
				return
			}
			if err != nil {
				logger.Errorf(ctx, "llm: stream error in namespace %s: %v", ns, err)
				out <- StreamToken{Done: true, Err: appErrors.NewUpstreamFatalError("llm: stream failed", err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- StreamToken{Content: delta}:
			case <-ctx.Done():
				out <- StreamToken{Done: true, Err: appErrors.NewStreamDisconnectError("llm: client disconnected mid-stream")}
				return
			}
		}
	}()
	return out, nil
}

func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	return true // network-level errors (timeouts, connection resets) are assumed transient
}
