package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kristoman/standardgpt/internal/conversationstore"
	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/memory"
)

// SessionHandler operates on in-process ConversationMemory for the
// caller's session id, per spec.md §6.1.
type SessionHandler struct {
	memory *memory.Store
	store  conversationstore.Store
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(mem *memory.Store, store conversationstore.Store) *SessionHandler {
	return &SessionHandler{memory: mem, store: store}
}

type sessionActionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// Clear handles POST /api/session/clear, dropping sessionID's in-process
// history. The durable conversation, if any, is untouched.
func (h *SessionHandler) Clear(c *gin.Context) {
	var req sessionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	h.memory.Clear(req.SessionID)
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// SaveMemory handles POST /api/session/save-memory, flushing sessionID's
// current in-process exchanges into the durable ConversationStore under
// the same id, for a caller that only wants a snapshot persisted instead
// of depending on a stream/query notifier path.
func (h *SessionHandler) SaveMemory(c *gin.Context) {
	ctx := c.Request.Context()
	userID := UserIDFromContext(ctx)

	var req sessionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	exchanges := h.memory.Export(req.SessionID)
	if len(exchanges) == 0 {
		c.JSON(http.StatusOK, gin.H{"saved": 0})
		return
	}

	if err := h.store.EnsureExists(ctx, req.SessionID, userID); err != nil {
		logger.Errorf(ctx, "session: save-memory failed to ensure conversation %s exists: %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist memory"})
		return
	}
	for _, ex := range exchanges {
		if err := h.store.AppendExchange(ctx, req.SessionID, userID, ex.User, ex.System); err != nil {
			logger.Errorf(ctx, "session: save-memory append failed for %s: %v", req.SessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist memory"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"saved": len(exchanges)})
}

// Rebuild handles POST /api/session/rebuild, loading a durably-persisted
// conversation's exchanges back into in-process memory, so a caller can
// resume an older conversation's context.
func (h *SessionHandler) Rebuild(c *gin.Context) {
	ctx := c.Request.Context()
	userID := UserIDFromContext(ctx)

	var req sessionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	_, exchanges, err := h.store.Get(ctx, req.SessionID, userID)
	if err != nil {
		if errors.Is(err, conversationstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		logger.Errorf(ctx, "session: rebuild failed to load %s: %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rebuild memory"})
		return
	}

	h.memory.Rebuild(req.SessionID, exchanges)
	c.JSON(http.StatusOK, gin.H{"rebuilt": len(exchanges)})
}

// Stats handles GET /api/session/stats.
func (h *SessionHandler) Stats(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":     sessionID,
		"exchange_count": h.memory.ExchangeCount(sessionID),
	})
}
