package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kristoman/standardgpt/internal/memory"
)

func newSessionRouter(h *SessionHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/session/clear", h.Clear)
	r.POST("/api/session/save-memory", h.SaveMemory)
	r.POST("/api/session/rebuild", h.Rebuild)
	r.GET("/api/session/stats", h.Stats)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionClearDropsInProcessHistory(t *testing.T) {
	mem := memory.New()
	mem.Append("sess-1", "question", "answer")
	h := NewSessionHandler(mem, newFakeStore())
	r := newSessionRouter(h)

	w := postJSON(t, r, "/api/session/clear", sessionActionRequest{SessionID: "sess-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mem.ExchangeCount("sess-1") != 0 {
		t.Fatal("expected history to be cleared")
	}
}

func TestSessionClearMissingSessionIDReturns400(t *testing.T) {
	h := NewSessionHandler(memory.New(), newFakeStore())
	r := newSessionRouter(h)

	w := postJSON(t, r, "/api/session/clear", sessionActionRequest{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSessionSaveMemoryPersistsExchanges(t *testing.T) {
	mem := memory.New()
	mem.Append("sess-2", "hva er NS 3420?", "en beskrivelsesstandard")
	store := newFakeStore()
	h := NewSessionHandler(mem, store)
	r := newSessionRouter(h)

	w := postJSON(t, r, "/api/session/save-memory", sessionActionRequest{SessionID: "sess-2"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["saved"] != 1 {
		t.Fatalf("expected saved=1, got %d", resp["saved"])
	}
	if len(store.msgs["sess-2"]) != 1 {
		t.Fatalf("expected 1 persisted exchange, got %d", len(store.msgs["sess-2"]))
	}
}

func TestSessionSaveMemoryWithNoHistorySavesZero(t *testing.T) {
	h := NewSessionHandler(memory.New(), newFakeStore())
	r := newSessionRouter(h)

	w := postJSON(t, r, "/api/session/save-memory", sessionActionRequest{SessionID: "sess-empty"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["saved"] != 0 {
		t.Fatalf("expected saved=0, got %d", resp["saved"])
	}
}

func TestSessionSaveMemoryPropagatesEnsureExistsFailure(t *testing.T) {
	mem := memory.New()
	mem.Append("sess-3", "q", "a")
	store := newFakeStore()
	store.ensureExistsErr = errBoom
	h := NewSessionHandler(mem, store)
	r := newSessionRouter(h)

	w := postJSON(t, r, "/api/session/save-memory", sessionActionRequest{SessionID: "sess-3"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestSessionRebuildLoadsPersistedExchangesIntoMemory(t *testing.T) {
	mem := memory.New()
	store := newFakeStore()
	if _, err := store.Create(context.Background(), "anonymous", "q1", "a1"); err != nil {
		t.Fatalf("failed to seed fake store: %v", err)
	}
	h := NewSessionHandler(mem, store)
	r := newSessionRouter(h)

	w := postJSON(t, r, "/api/session/rebuild", sessionActionRequest{SessionID: "created-conversation"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if mem.ExchangeCount("created-conversation") != 1 {
		t.Fatalf("expected 1 exchange rebuilt into memory, got %d", mem.ExchangeCount("created-conversation"))
	}
}

func TestSessionRebuildUnknownConversationReturns404(t *testing.T) {
	h := NewSessionHandler(memory.New(), newFakeStore())
	r := newSessionRouter(h)

	w := postJSON(t, r, "/api/session/rebuild", sessionActionRequest{SessionID: "does-not-exist"})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSessionStatsReportsExchangeCount(t *testing.T) {
	mem := memory.New()
	mem.Append("sess-4", "q1", "a1")
	mem.Append("sess-4", "q2", "a2")
	h := NewSessionHandler(mem, newFakeStore())
	r := newSessionRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/session/stats?session_id=sess-4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["exchange_count"].(float64) != 2 {
		t.Fatalf("expected exchange_count=2, got %v", resp["exchange_count"])
	}
}

func TestSessionStatsMissingSessionIDReturns400(t *testing.T) {
	h := NewSessionHandler(memory.New(), newFakeStore())
	r := newSessionRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/session/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
