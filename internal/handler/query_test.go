package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newQueryRouter(h *QueryHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/query", h.HandleQuery)
	return r
}

func TestHandleQueryHappyPath(t *testing.T) {
	store := newFakeStore()
	h := NewQueryHandler(newTestOrchestrator(), store)
	r := newQueryRouter(h)

	body, _ := json.Marshal(queryRequest{Question: "Hva handler NS 3420 om?"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Answer == "" {
		t.Fatal("expected non-empty answer")
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id to be assigned")
	}
	if w.Header().Get(sessionIDHeader) == "" {
		t.Fatal("expected X-Session-ID response header to be set")
	}
}

func TestHandleQueryMissingQuestionReturns400(t *testing.T) {
	h := NewQueryHandler(newTestOrchestrator(), newFakeStore())
	r := newQueryRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleQueryReusesProvidedSessionID(t *testing.T) {
	h := NewQueryHandler(newTestOrchestrator(), newFakeStore())
	r := newQueryRouter(h)

	body, _ := json.Marshal(queryRequest{Question: "Hva sier NS 3420?"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionIDHeader, "session-123")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp queryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionID != "session-123" {
		t.Fatalf("expected session-123, got %q", resp.SessionID)
	}
}

func TestHandleQueryEnsuresConversationExists(t *testing.T) {
	store := newFakeStore()
	h := NewQueryHandler(newTestOrchestrator(), store)
	r := newQueryRouter(h)

	body, _ := json.Marshal(queryRequest{Question: "Hva sier NS 3420?"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionIDHeader, "session-ensure")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := store.convs["session-ensure"]; !ok {
		t.Fatal("expected conversation to have been ensured to exist")
	}
}

func TestHandleQuerySurvivesEnsureExistsFailure(t *testing.T) {
	store := newFakeStore()
	store.ensureExistsErr = errBoom
	h := NewQueryHandler(newTestOrchestrator(), store)
	r := newQueryRouter(h)

	body, _ := json.Marshal(queryRequest{Question: "Hva sier NS 3420?"})
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected query to still succeed despite a failed EnsureExists, got %d", w.Code)
	}
}
