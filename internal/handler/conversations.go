package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kristoman/standardgpt/internal/conversationstore"
	"github.com/kristoman/standardgpt/internal/logger"
)

// ConversationsHandler serves the durable conversation CRUD surface of
// spec.md §6.4, scoped to the authenticated caller.
type ConversationsHandler struct {
	store conversationstore.Store
}

// NewConversationsHandler constructs a ConversationsHandler.
func NewConversationsHandler(store conversationstore.Store) *ConversationsHandler {
	return &ConversationsHandler{store: store}
}

type conversationSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	LastMessageAt string `json:"last_message_at"`
	MessageCount  int    `json:"message_count"`
}

// List handles GET /api/conversations.
func (h *ConversationsHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userID := UserIDFromContext(ctx)

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	convs, err := h.store.List(ctx, userID, limit, offset)
	if err != nil {
		logger.Errorf(ctx, "conversations: list failed for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	summaries := make([]conversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, conversationSummary{
			ID:            conv.ID,
			Title:         conv.Title,
			LastMessageAt: conv.LastMessageAt.Format(timeFormat),
			MessageCount:  conv.MessageCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

type exchangeView struct {
	User      string `json:"user"`
	System    string `json:"system"`
	Timestamp string `json:"timestamp"`
}

// Get handles GET /api/conversations/:id.
func (h *ConversationsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	userID := UserIDFromContext(ctx)
	id := c.Param("id")

	conv, exchanges, err := h.store.Get(ctx, id, userID)
	if err != nil {
		if errors.Is(err, conversationstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		logger.Errorf(ctx, "conversations: get %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	views := make([]exchangeView, 0, len(exchanges))
	for _, ex := range exchanges {
		views = append(views, exchangeView{User: ex.User, System: ex.System, Timestamp: ex.Timestamp.Format(timeFormat)})
	}
	c.JSON(http.StatusOK, gin.H{
		"id":              conv.ID,
		"title":           conv.Title,
		"created_at":      conv.CreatedAt.Format(timeFormat),
		"last_message_at": conv.LastMessageAt.Format(timeFormat),
		"exchanges":       views,
	})
}

type createConversationRequest struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

// Create handles POST /api/conversations, seeding a new durable
// conversation from an already-completed exchange (e.g. one a caller ran
// through /api/query without a prior X-Session-ID).
func (h *ConversationsHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	userID := UserIDFromContext(ctx)

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question and answer are required"})
		return
	}

	id, err := h.store.Create(ctx, userID, req.Question, req.Answer)
	if err != nil {
		logger.Errorf(ctx, "conversations: create failed for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Delete handles DELETE /api/conversations/:id.
func (h *ConversationsHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	userID := UserIDFromContext(ctx)
	id := c.Param("id")

	if err := h.store.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, conversationstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		logger.Errorf(ctx, "conversations: delete %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}
	c.Status(http.StatusNoContent)
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
