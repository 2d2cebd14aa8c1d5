package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newConversationsRouter(h *ConversationsHandler) *gin.Engine {
	r := gin.New()
	r.GET("/api/conversations", h.List)
	r.GET("/api/conversations/:id", h.Get)
	r.POST("/api/conversations", h.Create)
	r.DELETE("/api/conversations/:id", h.Delete)
	return r
}

func TestConversationsListReturnsOnlyCallersConversations(t *testing.T) {
	store := newFakeStore()
	if _, err := store.Create(context.Background(), "anonymous", "q1", "a1"); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	h := NewConversationsHandler(store)
	r := newConversationsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Conversations []conversationSummary `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(resp.Conversations))
	}
}

func TestConversationsListFailureReturns500(t *testing.T) {
	store := newFakeStore()
	store.listErr = errBoom
	h := NewConversationsHandler(store)
	r := newConversationsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestConversationsGetReturnsExchanges(t *testing.T) {
	store := newFakeStore()
	id, err := store.Create(context.Background(), "anonymous", "hva er NS 3420?", "en beskrivelsesstandard")
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	h := NewConversationsHandler(store)
	r := newConversationsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+id, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestConversationsGetUnknownIDReturns404(t *testing.T) {
	h := NewConversationsHandler(newFakeStore())
	r := newConversationsRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestConversationsCreateReturnsNewID(t *testing.T) {
	h := NewConversationsHandler(newFakeStore())
	r := newConversationsRouter(h)

	body, _ := json.Marshal(createConversationRequest{Question: "q", Answer: "a"})
	req := httptest.NewRequest(http.MethodPost, "/api/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("expected a non-empty id")
	}
}

func TestConversationsCreateMissingFieldsReturns400(t *testing.T) {
	h := NewConversationsHandler(newFakeStore())
	r := newConversationsRouter(h)

	body, _ := json.Marshal(createConversationRequest{Question: "only question"})
	req := httptest.NewRequest(http.MethodPost, "/api/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestConversationsDeleteSucceeds(t *testing.T) {
	store := newFakeStore()
	id, err := store.Create(context.Background(), "anonymous", "q", "a")
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	h := NewConversationsHandler(store)
	r := newConversationsRouter(h)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/"+id, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestConversationsDeleteUnknownIDReturns404(t *testing.T) {
	h := NewConversationsHandler(newFakeStore())
	r := newConversationsRouter(h)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
