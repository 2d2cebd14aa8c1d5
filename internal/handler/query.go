package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kristoman/standardgpt/internal/conversationstore"
	apperrors "github.com/kristoman/standardgpt/internal/errors"
	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/orchestrator"
	"github.com/kristoman/standardgpt/internal/secutils"
)

// sessionIDHeader is the header a caller uses to resume an existing
// conversation/memory session, per spec.md §6.1.
const sessionIDHeader = "X-Session-ID"

// QueryHandler serves the synchronous, non-streaming query endpoint.
// Grounded on the teacher's NewXHandler(deps...)/func (h *Handler)
// Action(c *gin.Context) handler shape.
type QueryHandler struct {
	orchestrator *orchestrator.Orchestrator
	store        conversationstore.Store
}

// NewQueryHandler constructs a QueryHandler.
func NewQueryHandler(o *orchestrator.Orchestrator, store conversationstore.Store) *QueryHandler {
	return &QueryHandler{orchestrator: o, store: store}
}

// queryRequest is POST /api/query and /api/query/stream's shared body.
type queryRequest struct {
	Question string `json:"question" binding:"required"`
}

// queryResponse is POST /api/query's response, per spec.md §6.1.
type queryResponse struct {
	Answer         string   `json:"answer"`
	Route          string   `json:"route"`
	Standards      []string `json:"standards"`
	MemoryTerms    []string `json:"memory_terms"`
	ProcessingTime float64  `json:"processing_time"`
	SessionID      string   `json:"session_id"`
	Success        bool     `json:"success"`
}

func sessionIDFor(c *gin.Context) string {
	if id := c.GetHeader(sessionIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleQuery handles POST /api/query.
func (h *QueryHandler) HandleQuery(c *gin.Context) {
	ctx := c.Request.Context()

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	sessionID := sessionIDFor(c)
	userID := UserIDFromContext(ctx)
	logger.Infof(ctx, "query: session=%s question=%q", sessionID, secutils.SanitizeForLog(req.Question))

	if h.store != nil {
		if err := h.store.EnsureExists(ctx, sessionID, userID); err != nil {
			logger.Errorf(ctx, "query: failed to ensure conversation %s exists: %v", sessionID, err)
		}
	}

	result, err := h.orchestrator.Run(ctx, req.Question, sessionID, "")
	if err != nil {
		writeAppError(c, err)
		return
	}

	c.Header(sessionIDHeader, sessionID)
	c.JSON(http.StatusOK, queryResponse{
		Answer:         result.Answer,
		Route:          string(result.Route),
		Standards:      result.Standards,
		MemoryTerms:    result.MemoryTerms,
		ProcessingTime: result.ProcessingTime.Seconds(),
		SessionID:      result.SessionID,
		Success:        result.Success,
	})
}

// writeAppError maps an orchestrator error to the HTTP status spec.md §7
// assigns its Kind, falling back to 500 for anything unrecognised.
func writeAppError(c *gin.Context, err error) {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		c.Error(ae)
		c.JSON(ae.HTTPStatus(), gin.H{"error": ae.Message, "success": false})
		return
	}
	c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "success": false})
}
