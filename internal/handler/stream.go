package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kristoman/standardgpt/internal/asynqtask"
	"github.com/kristoman/standardgpt/internal/conversationstore"
	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/orchestrator"
	"github.com/kristoman/standardgpt/internal/progressbus"
	"github.com/kristoman/standardgpt/internal/secutils"
	"github.com/kristoman/standardgpt/internal/types"
)

// StreamHandler serves the async query dispatch and its SSE read side,
// per spec.md §6.1: POST /api/query/stream starts processing and returns
// immediately; GET /api/stream/:id streams the ProgressBus events for it.
type StreamHandler struct {
	orchestrator *orchestrator.Orchestrator
	store        conversationstore.Store
	bus          *progressbus.Bus
	asynqClient  *asynq.Client
}

// NewStreamHandler constructs a StreamHandler. asynqClient may be nil, in
// which case the stream endpoint runs the orchestrator in an in-process
// goroutine instead of enqueueing a task for cmd/worker, keeping the core
// pipeline runnable without a Redis-backed queue configured.
func NewStreamHandler(o *orchestrator.Orchestrator, store conversationstore.Store, bus *progressbus.Bus, asynqClient *asynq.Client) *StreamHandler {
	return &StreamHandler{orchestrator: o, store: store, bus: bus, asynqClient: asynqClient}
}

type streamStartResponse struct {
	SessionID       string `json:"session_id"`
	StreamSessionID string `json:"stream_session_id"`
	StreamURL       string `json:"stream_url"`
}

// HandleQueryStream handles POST /api/query/stream.
func (h *StreamHandler) HandleQueryStream(c *gin.Context) {
	ctx := c.Request.Context()

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	sessionID := sessionIDFor(c)
	streamSessionID := uuid.NewString()
	userID := UserIDFromContext(ctx)
	logger.Infof(ctx, "query/stream: session=%s stream=%s question=%q",
		sessionID, streamSessionID, secutils.SanitizeForLog(req.Question))

	if h.store != nil {
		if err := h.store.EnsureExists(ctx, sessionID, userID); err != nil {
			logger.Errorf(ctx, "query/stream: failed to ensure conversation %s exists: %v", sessionID, err)
		}
	}

	h.bus.CreateSession(streamSessionID)

	bgCtx := logger.CloneContext(ctx)

	if h.asynqClient != nil {
		task, err := asynqtask.NewOrchestrateTask(asynqtask.Payload{
			Question:              req.Question,
			ConversationSessionID: sessionID,
			StreamSessionID:       streamSessionID,
		})
		if err != nil {
			logger.Errorf(ctx, "query/stream: failed to build task: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch query"})
			return
		}
		if _, err := h.asynqClient.EnqueueContext(ctx, task); err != nil {
			logger.Errorf(ctx, "query/stream: failed to enqueue task, falling back to in-process: %v", err)
			h.runInProcess(bgCtx, req.Question, sessionID, streamSessionID)
		}
	} else {
		h.runInProcess(bgCtx, req.Question, sessionID, streamSessionID)
	}

	c.JSON(http.StatusOK, streamStartResponse{
		SessionID:       sessionID,
		StreamSessionID: streamSessionID,
		StreamURL:       "/api/stream/" + streamSessionID,
	})
}

// runInProcess runs the orchestrator on a detached goroutine with ctx
// already cleaned of the request's own deadline/cancellation, used when no
// asynq queue is configured.
func (h *StreamHandler) runInProcess(ctx context.Context, question, sessionID, streamSessionID string) {
	go func() {
		if _, err := h.orchestrator.Run(ctx, question, sessionID, streamSessionID); err != nil {
			logger.Errorf(ctx, "query/stream: in-process orchestration %s failed: %v", streamSessionID, err)
		}
	}()
}

// HandleStream handles GET /api/stream/:id, adapting ProgressBus.Subscribe
// onto the response per spec.md §6.1's SSE framing.
func (h *StreamHandler) HandleStream(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	fmt.Fprint(c.Writer, "retry: 1000\n\n")
	c.Writer.Flush()

	events := h.bus.Subscribe(ctx, id)
	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		if event.Type == types.EventKeepalive {
			fmt.Fprint(w, ": keepalive\n\n")
			return true
		}
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Errorf(ctx, "stream %s: failed to marshal event: %v", id, err)
			return true
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		return true
	})
}
