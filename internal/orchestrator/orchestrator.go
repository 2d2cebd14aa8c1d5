// Package orchestrator runs the query pipeline: validate, parallel
// optimise/analyse, extract, route, embed, build query, search, answer,
// persist. Grounded on original_source/src/flow_manager.py's stage
// sequence and downgrade rule, and on the teacher's
// internal/application/service/chat_pipline package's per-stage
// structured logging idiom (pipelineInfo/pipelineWarn).
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kristoman/standardgpt/internal/cache"
	"github.com/kristoman/standardgpt/internal/llm"
	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/memory"
	"github.com/kristoman/standardgpt/internal/progressbus"
	"github.com/kristoman/standardgpt/internal/promptstore"
	"github.com/kristoman/standardgpt/internal/querybuilder"
	"github.com/kristoman/standardgpt/internal/search"
	"github.com/kristoman/standardgpt/internal/types"
	"github.com/kristoman/standardgpt/internal/validator"
)

// Progress stage percentages, per spec.md §4.9's fixed, strictly increasing
// schedule.
const (
	pctStarted          = 5
	pctValidation       = 10
	pctAnalysis         = 15
	pctExtraction       = 25
	pctRouting          = 35
	pctSearchStart      = 45
	pctSearchEnd        = 75
	pctAnswerGeneration = 85
	pctComplete         = 100
)

const (
	streamingChunkBudget    = 6 * 1024
	nonStreamingChunkBudget = 15 * 1024
)

// LLM is the subset of llm.Client the orchestrator depends on, kept as an
// interface so tests can substitute a fake (spec.md §9 "collaborators as
// interfaces").
type LLM interface {
	Call(ctx context.Context, ns llm.Namespace, cacheKey string, messages []llm.Message, opts *llm.CallOpts) (string, error)
	Stream(ctx context.Context, ns llm.Namespace, messages []llm.Message) (<-chan llm.StreamToken, error)
}

// Message and CallOpts are aliased to the llm package's wire types so a real
// *llm.Client satisfies LLM without an adapter.
type Message = llm.Message

// CallOpts is re-exported for callers that only import this package.
type CallOpts = llm.CallOpts

// Embedder is the subset of embedding.Client the orchestrator depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) types.Embedding
}

// SearchBackend is search.Backend, re-declared to avoid a direct package
// dependency cycle risk and to keep the orchestrator's dependency surface
// interface-only.
type SearchBackend interface {
	Search(ctx context.Context, qo types.QueryObject) search.Response
}

// ConversationNotifier is notified of a completed exchange so an external,
// durable ConversationStore can persist it; nil-safe (no-op when absent).
type ConversationNotifier interface {
	NotifyExchange(ctx context.Context, conversationID, question, answer string)
}

// Orchestrator wires every pipeline component per spec.md §4.10.
type Orchestrator struct {
	LLM      LLM
	Embedder Embedder
	Search   SearchBackend
	Memory   *memory.Store
	Bus      *progressbus.Bus
	Prompts  *promptstore.Store
	Notifier ConversationNotifier

	// SoftDeadline bounds the whole orchestration (spec.md §5); the
	// streaming path should be constructed with the larger end of the
	// 30-45s range.
	SoftDeadline time.Duration

	tracer trace.Tracer
}

// New constructs an Orchestrator. softDeadline should be 30s for the
// non-streaming endpoint and up to 45s for the streaming one.
func New(llmClient LLM, embedder Embedder, searchBackend SearchBackend, mem *memory.Store, bus *progressbus.Bus, prompts *promptstore.Store, notifier ConversationNotifier, softDeadline time.Duration) *Orchestrator {
	return &Orchestrator{
		LLM: llmClient, Embedder: embedder, Search: searchBackend,
		Memory: mem, Bus: bus, Prompts: prompts, Notifier: notifier,
		SoftDeadline: softDeadline,
		tracer:       otel.Tracer("standardgpt/orchestrator"),
	}
}

// Result is the terminal outcome of Run, shaped to populate the
// /api/query response body.
type Result struct {
	Answer         string
	Route          types.Route
	Standards      []string
	MemoryTerms    []string
	MemoryFallback bool
	ProcessingTime time.Duration
	SessionID      string
	Success        bool
}

func memKwargs(conversationMemory string) map[string]string {
	return map[string]string{"conversation_memory": conversationMemory}
}

// Run executes the full pipeline for one question. conversationSessionID
// scopes ConversationMemory; streamSessionID scopes ProgressBus publishes
// and may be empty when the caller is the non-streaming endpoint (Publish
// on an unregistered id is a safe no-op).
func (o *Orchestrator) Run(ctx context.Context, rawQuestion, conversationSessionID, streamSessionID string) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.effectiveDeadline())
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "orchestrator.Run")
	defer span.End()

	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "started", Percent: pctStarted})

	// 1. Validate.
	question, err := o.validate(ctx, streamSessionID, rawQuestion)
	if err != nil {
		return nil, err
	}

	conversationMemory := memory.NoMemory
	if o.Memory != nil {
		conversationMemory = o.Memory.Get(conversationSessionID)
	}

	// 2. Parallel(optimise-semantic, analyse).
	optimised, analysis := o.optimiseAndAnalyse(ctx, streamSessionID, question, conversationMemory)

	// 3. Extract.
	standards, memoryTerms, memoryFallback := o.extract(ctx, streamSessionID, question, conversationMemory, analysis)
	if memoryFallback {
		analysis = "without"
	}

	// 4. Route decision.
	route := decideRoute(analysis, standards, memoryTerms)
	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "routing", Percent: pctRouting})
	logger.Infof(ctx, "orchestrator: route=%s standards=%v memory_terms=%v memory_fallback=%v", route, standards, memoryTerms, memoryFallback)

	// 5. Embed (optional).
	var vector types.Embedding
	if o.Embedder != nil {
		vector = o.Embedder.Embed(ctx, optimised)
	}

	// 6. Build query + 7. Search.
	resp := o.searchForRoute(ctx, streamSessionID, route, standards, memoryTerms, question, vector)
	if route == types.RouteIncluding && len(standards) == 0 {
		route = types.RouteWithout
	}

	chunks := search.FormatChunks(resp)

	// 8. Answer.
	answer, streamOK := o.answer(ctx, streamSessionID, question, conversationMemory, chunks)

	// 9. Persist exchange.
	if strings.TrimSpace(question) != "" && answer != "" {
		if o.Memory != nil {
			o.Memory.Append(conversationSessionID, question, answer)
		}
		if o.Notifier != nil && conversationSessionID != "" {
			o.Notifier.NotifyExchange(logger.CloneContext(ctx), conversationSessionID, question, answer)
		}
	}

	// 10. Complete.
	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventFinalAnswer, Answer: answer})
	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "complete", Percent: pctComplete})

	return &Result{
		Answer:         answer,
		Route:          route,
		Standards:      standards,
		MemoryTerms:    memoryTerms,
		MemoryFallback: memoryFallback,
		ProcessingTime: time.Since(start),
		SessionID:      conversationSessionID,
		Success:        streamOK,
	}, nil
}

func (o *Orchestrator) effectiveDeadline() time.Duration {
	if o.SoftDeadline <= 0 {
		return 30 * time.Second
	}
	return o.SoftDeadline
}

func (o *Orchestrator) publish(streamSessionID string, event types.ProgressEvent) {
	if o.Bus == nil || streamSessionID == "" {
		return
	}
	o.Bus.Publish(streamSessionID, event)
}

func (o *Orchestrator) validate(ctx context.Context, streamSessionID, rawQuestion string) (string, error) {
	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "validation", Percent: pctValidation})
	question, err := validator.Validate(rawQuestion)
	if err != nil {
		logger.Warnf(ctx, "orchestrator: validation failed: %v", err)
		o.publish(streamSessionID, types.ProgressEvent{Type: types.EventError, ErrorMessage: err.Error()})
		return "", err
	}
	return question, nil
}

// optimiseAndAnalyse runs the two independent LLM calls of step 2 together
// via errgroup, the idiomatic Go expression of spec.md §5's structured
// concurrency requirement (both complete, or both are cancelled, before
// step 3 proceeds). The analysis result is returned lowercased and
// trimmed but otherwise raw — per original_source/src/flow_manager.py's
// route decision, only decideRoute's final unmatched case coerces it down
// to RouteWithout's backing value "without".
func (o *Orchestrator) optimiseAndAnalyse(ctx context.Context, streamSessionID, question, conversationMemory string) (string, string) {
	var optimised, analysisRaw string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		key := cache.BuildKey(string(promptstore.OptimizeSemantic), question, memKwargs(conversationMemory))
		prompt, err := o.Prompts.Render(promptstore.OptimizeSemantic, map[string]string{promptstore.VarLastUtterance: question})
		if err != nil {
			return err
		}
		text, err := o.LLM.Call(gctx, promptstore.OptimizeSemantic, key, []Message{{Role: "user", Content: prompt}}, nil)
		optimised = text
		return err
	})
	g.Go(func() error {
		key := cache.BuildKey(string(promptstore.Analysis), question, memKwargs(conversationMemory))
		prompt, err := o.Prompts.Render(promptstore.Analysis, map[string]string{
			promptstore.VarLastUtterance:      question,
			promptstore.VarConversationMemory: conversationMemory,
		})
		if err != nil {
			return err
		}
		text, err := o.LLM.Call(gctx, promptstore.Analysis, key, []Message{{Role: "user", Content: prompt}}, &CallOpts{ResponseFormat: llm.AnalysisResponseFormat()})
		analysisRaw = parseAnalysisRoute(text)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Warnf(ctx, "orchestrator: optimise/analyse phase degraded: %v", err)
	}

	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "analysis", Percent: pctAnalysis})

	if optimised == "" {
		optimised = question
	}

	return optimised, analysisRaw
}

// parseAnalysisRoute extracts the route classification from the
// Analysis call's JSON-schema-constrained response ({"route": "..."}).
// A response that fails to decode as AnalysisRoute (a non-conforming
// model, a transport error producing an empty string) is passed through
// as-is — decideRoute's substring matching and final "without" fallback
// handle anything that isn't one of the four expected values.
func parseAnalysisRoute(raw string) string {
	var parsed llm.AnalysisRoute
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Route == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(strings.TrimSpace(parsed.Route))
}

// extract runs step 3: branch on analysis, with the single permitted
// post-analysis downgrade (memory -> without on empty memory terms).
func (o *Orchestrator) extract(ctx context.Context, streamSessionID, question, conversationMemory, analysis string) (standards, memoryTerms []string, memoryFallback bool) {
	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "extraction", Percent: pctExtraction})

	if analysis == string(types.RouteMemory) {
		key := cache.BuildKey(string(promptstore.ExtractFromMemory), question, memKwargs(conversationMemory))
		prompt, err := o.Prompts.Render(promptstore.ExtractFromMemory, map[string]string{
			promptstore.VarLastUtterance:      question,
			promptstore.VarConversationMemory: conversationMemory,
		})
		var raw string
		if err == nil {
			raw, err = o.LLM.Call(ctx, promptstore.ExtractFromMemory, key, []Message{{Role: "user", Content: prompt}}, nil)
		}
		if err != nil {
			logger.Warnf(ctx, "orchestrator: extractFromMemory failed: %v", err)
		}
		memoryTerms = validator.ValidateStandardNumbers(splitCommaList(raw))
		if len(memoryTerms) == 0 {
			return nil, nil, true
		}
		return nil, memoryTerms, false
	}

	key := cache.BuildKey(string(promptstore.ExtractStandard), question, memKwargs(conversationMemory))
	prompt, err := o.Prompts.Render(promptstore.ExtractStandard, map[string]string{promptstore.VarLastUtterance: question})
	var raw string
	if err == nil {
		raw, err = o.LLM.Call(ctx, promptstore.ExtractStandard, key, []Message{{Role: "user", Content: prompt}}, nil)
	}
	if err != nil {
		logger.Warnf(ctx, "orchestrator: extractStandard failed: %v", err)
	}
	standards = validator.ValidateStandardNumbers(splitCommaList(raw))

	if len(standards) == 0 && analysis == string(types.RouteIncluding) {
		standards = validator.ExtractStandardsFromText(conversationMemory)
	}
	return standards, nil, false
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decideRoute implements step 4's final route decision. analysis is the
// lowercased, trimmed but otherwise raw analysis text, not a value
// pre-coerced to one of the four route constants, so substring matching
// against stray model output (e.g. "...gjelder personalhåndbok...") still
// works; a value that matches nothing at all falls through to RouteWithout.
func decideRoute(analysis string, standards, memoryTerms []string) types.Route {
	switch {
	case analysis == string(types.RouteMemory) && len(memoryTerms) > 0:
		return types.RouteMemory
	case analysis == string(types.RouteIncluding) && len(standards) > 0:
		return types.RouteIncluding
	case strings.Contains(analysis, "personal"), strings.Contains(analysis, "personalhåndbok"):
		return types.RoutePersonal
	default:
		return types.RouteWithout
	}
}

// searchForRoute implements steps 6 and 7: build the route-specific query
// object, run it, and apply the `including`-route zero-hit textual retry.
func (o *Orchestrator) searchForRoute(ctx context.Context, streamSessionID string, route types.Route, standards, memoryTerms []string, question string, vector types.Embedding) search.Response {
	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "search", Percent: pctSearchStart})

	var optimisedTextual string
	var qo types.QueryObject

	switch route {
	case types.RouteIncluding:
		qo = querybuilder.BuildFilter(standards, vector)
	case types.RoutePersonal:
		qo = querybuilder.BuildPersonal(vector)
	case types.RouteMemory:
		qo = querybuilder.BuildMemory(memoryTerms, vector)
	default:
		optimisedTextual = o.optimizeTextual(ctx, question)
		qo = querybuilder.BuildTextual(optimisedTextual, vector)
	}

	resp := o.Search.Search(ctx, qo)

	if route == types.RouteIncluding && len(resp.Hits) == 0 {
		if optimisedTextual == "" {
			optimisedTextual = o.optimizeTextual(ctx, question)
		}
		logger.Infof(ctx, "orchestrator: including route returned 0 hits, retrying with textual builder")
		resp = o.Search.Search(ctx, querybuilder.BuildTextual(optimisedTextual, vector))
	}

	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "search", Percent: pctSearchEnd})
	return resp
}

func (o *Orchestrator) optimizeTextual(ctx context.Context, question string) string {
	key := cache.BuildKey(string(promptstore.OptimizeTextual), question, nil)
	prompt, err := o.Prompts.Render(promptstore.OptimizeTextual, map[string]string{promptstore.VarLastUtterance: question})
	if err != nil {
		return question
	}
	text, err := o.LLM.Call(ctx, promptstore.OptimizeTextual, key, []Message{{Role: "user", Content: prompt}}, nil)
	if err != nil || text == "" {
		return question
	}
	return text
}

// answer implements step 8: stream the answer, falling back to one
// non-streaming Call on stream failure, preserving any partial tokens
// already emitted.
func (o *Orchestrator) answer(ctx context.Context, streamSessionID, question, conversationMemory, chunks string) (string, bool) {
	streamChunks := trimToBudget(chunks, streamingChunkBudget)
	prompt, err := o.Prompts.Render(promptstore.Answer, map[string]string{
		promptstore.VarChunks:             streamChunks,
		promptstore.VarLastUtterance:      question,
		promptstore.VarConversationMemory: conversationMemory,
	})
	if err != nil {
		o.publish(streamSessionID, types.ProgressEvent{Type: types.EventError, ErrorMessage: "kunne ikke bygge svar-prompt"})
		return "Beklager, jeg kunne ikke fullføre svaret.", false
	}

	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventProgress, Stage: "answer_generation", Percent: pctAnswerGeneration})

	tokens, err := o.LLM.Stream(ctx, promptstore.Answer, []Message{{Role: "user", Content: prompt}})
	if err == nil {
		var sb strings.Builder
		streamFailed := false
		for tok := range tokens {
			if tok.Err != nil {
				streamFailed = true
				break
			}
			if tok.Content != "" {
				sb.WriteString(tok.Content)
				o.publish(streamSessionID, types.ProgressEvent{Type: types.EventToken, Text: tok.Content, Final: tok.Done})
			}
			if tok.Done {
				break
			}
		}
		if !streamFailed {
			return sb.String(), true
		}
		if partial := sb.String(); partial != "" {
			logger.Warnf(ctx, "orchestrator: stream failed mid-way, preserving %d chars of partial answer before fallback", len(partial))
		}
	} else {
		logger.Warnf(ctx, "orchestrator: failed to open answer stream: %v", err)
	}

	nonStreamChunks := trimToBudget(chunks, nonStreamingChunkBudget)
	fallbackPrompt, ferr := o.Prompts.Render(promptstore.Answer, map[string]string{
		promptstore.VarChunks:             nonStreamChunks,
		promptstore.VarLastUtterance:      question,
		promptstore.VarConversationMemory: conversationMemory,
	})
	if ferr == nil {
		if text, err := o.LLM.Call(ctx, promptstore.Answer, cache.BuildKey(string(promptstore.Answer), question, memKwargs(conversationMemory)), []Message{{Role: "user", Content: fallbackPrompt}}, nil); err == nil && text != "" {
			o.publish(streamSessionID, types.ProgressEvent{Type: types.EventToken, Text: text, Final: true})
			return text, true
		}
	}

	msg := "Beklager, jeg kunne ikke fullføre svaret akkurat nå."
	o.publish(streamSessionID, types.ProgressEvent{Type: types.EventError, ErrorMessage: msg})
	return msg, false
}

// trimToBudget implements the chunk-size management rule preceding step 8:
// drop whole hit sections from the tail until within budget, then
// hard-truncate with an ellipsis if still over.
func trimToBudget(formatted string, budgetBytes int) string {
	if len(formatted) <= budgetBytes {
		return formatted
	}
	sections := strings.Split(formatted, "\n\n")
	for len(sections) > 1 && len(strings.Join(sections, "\n\n")) > budgetBytes {
		sections = sections[:len(sections)-1]
	}
	out := strings.Join(sections, "\n\n")
	if len(out) > budgetBytes {
		if budgetBytes > 1 {
			out = out[:budgetBytes-1] + "…"
		} else {
			out = "…"
		}
	}
	return out
}
