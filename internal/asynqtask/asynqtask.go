// Package asynqtask defines the single background task the streaming
// query endpoint enqueues and cmd/worker processes, grounded on the
// teacher's internal/types/interfaces.TaskHandler shape
// (Handle(ctx, *asynq.Task) error) applied to this domain's one job:
// running the orchestrator and publishing to ProgressBus.
package asynqtask

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/orchestrator"
)

// TypeOrchestrate is the asynq task type name for one query run.
const TypeOrchestrate = "orchestrate:query"

// Payload is the JSON body of an orchestrate task.
type Payload struct {
	Question              string `json:"question"`
	ConversationSessionID  string `json:"conversation_session_id"`
	StreamSessionID        string `json:"stream_session_id"`
}

// NewOrchestrateTask builds the asynq.Task the streaming handler enqueues.
func NewOrchestrateTask(p Payload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("asynqtask: marshal payload: %w", err)
	}
	return asynq.NewTask(TypeOrchestrate, b), nil
}

// Handler is a TaskHandler (per the teacher's interfaces.TaskHandler
// contract) that runs the orchestrator for one enqueued query. A payload
// that fails to decode is returned as an error. Orchestrator errors are
// logged and swallowed rather than returned, since the orchestrator's own
// ProgressBus publish of an EventError is the caller-visible failure
// signal; returning an error here would only cause asynq to retry a
// request whose stream subscriber may already be gone.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
}

// NewHandler constructs a Handler.
func NewHandler(o *orchestrator.Orchestrator) *Handler {
	return &Handler{Orchestrator: o}
}

// Handle implements the teacher's TaskHandler interface.
func (h *Handler) Handle(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("asynqtask: unmarshal payload: %w", err)
	}

	ctx = logger.CloneContext(ctx)
	if _, err := h.Orchestrator.Run(ctx, p.Question, p.ConversationSessionID, p.StreamSessionID); err != nil {
		logger.Errorf(ctx, "asynqtask: orchestrate %s failed: %v", p.StreamSessionID, err)
	}
	return nil
}
