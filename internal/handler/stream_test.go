package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kristoman/standardgpt/internal/progressbus"
	"github.com/kristoman/standardgpt/internal/types"
)

func newStreamRouter(h *StreamHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/query/stream", h.HandleQueryStream)
	r.GET("/api/stream/:id", h.HandleStream)
	return r
}

func TestHandleQueryStreamWithoutAsynqRunsInProcess(t *testing.T) {
	bus := progressbus.New()
	h := NewStreamHandler(newTestOrchestrator(), newFakeStore(), bus, nil)
	r := newStreamRouter(h)

	body, _ := json.Marshal(queryRequest{Question: "Hva sier NS 3420?"})
	req := httptest.NewRequest(http.MethodPost, "/api/query/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp streamStartResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StreamSessionID == "" {
		t.Fatal("expected a stream session id")
	}
	if resp.StreamURL != "/api/stream/"+resp.StreamSessionID {
		t.Fatalf("unexpected stream url: %q", resp.StreamURL)
	}

	// The orchestrator runs on a detached goroutine; Subscribe blocks until
	// the session closes (which happens right after the terminal
	// final_answer publish), so draining it is enough synchronization.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	found := false
	for e := range bus.Subscribe(ctx, resp.StreamSessionID) {
		if e.Type == types.EventFinalAnswer {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the orchestrator to publish a final_answer event")
	}
}

func TestHandleQueryStreamMissingQuestionReturns400(t *testing.T) {
	bus := progressbus.New()
	h := NewStreamHandler(newTestOrchestrator(), newFakeStore(), bus, nil)
	r := newStreamRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/query/stream", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleStreamFramesConnectedAndFinalAnswerEvents(t *testing.T) {
	bus := progressbus.New()
	h := NewStreamHandler(newTestOrchestrator(), newFakeStore(), bus, nil)
	r := newStreamRouter(h)

	bus.CreateSession("stream-1")
	bus.Publish("stream-1", types.ProgressEvent{Type: types.EventProgress, Stage: "started", Percent: 5})
	bus.Publish("stream-1", types.ProgressEvent{Type: types.EventFinalAnswer, Answer: "svar"})

	req := httptest.NewRequest(http.MethodGet, "/api/stream/stream-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 1000\n\n") {
		t.Fatalf("expected stream to start with a retry directive, got: %q", body)
	}
	if !strings.Contains(body, `"type":"connected"`) {
		t.Fatalf("expected a connected event, got: %q", body)
	}
	if !strings.Contains(body, `"type":"final_answer"`) {
		t.Fatalf("expected a final_answer event, got: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream content type, got %q", ct)
	}
}
