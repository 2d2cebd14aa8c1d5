package handler

import (
	"context"
	"time"

	"github.com/kristoman/standardgpt/internal/llm"
	"github.com/kristoman/standardgpt/internal/memory"
	"github.com/kristoman/standardgpt/internal/orchestrator"
	"github.com/kristoman/standardgpt/internal/progressbus"
	"github.com/kristoman/standardgpt/internal/promptstore"
	"github.com/kristoman/standardgpt/internal/search"
	"github.com/kristoman/standardgpt/internal/types"
)

// stubLLM answers every Call with a fixed "without" analysis/any text and
// streams a single fixed answer token, just enough for the orchestrator to
// reach a deterministic terminal Result for handler-layer tests that don't
// care about pipeline internals.
type stubLLM struct{ answer string }

func (f *stubLLM) Call(_ context.Context, ns llm.Namespace, _ string, _ []llm.Message, _ *llm.CallOpts) (string, error) {
	if ns == promptstore.Analysis {
		return "without", nil
	}
	return "test query", nil
}

func (f *stubLLM) Stream(_ context.Context, _ llm.Namespace, _ []llm.Message) (<-chan llm.StreamToken, error) {
	out := make(chan llm.StreamToken, 2)
	out <- llm.StreamToken{Content: f.answer}
	out <- llm.StreamToken{Done: true}
	close(out)
	return out, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) types.Embedding { return nil }

type stubSearch struct{ resp search.Response }

func (s stubSearch) Search(context.Context, types.QueryObject) search.Response { return s.resp }

func newTestOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(
		&stubLLM{answer: "NS 3420 er en beskrivelsesstandard."},
		stubEmbedder{},
		stubSearch{},
		memory.New(),
		progressbus.New(),
		promptstore.New(),
		nil,
		5*time.Second,
	)
}
