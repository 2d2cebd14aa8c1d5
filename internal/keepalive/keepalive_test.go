package keepalive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsLocalDetectsLoopbackAndEmpty(t *testing.T) {
	cases := map[string]bool{
		"":                              true,
		"http://127.0.0.1:11434/embed":  true,
		"http://localhost:8080/embed":   true,
		"https://embeddings.example.com": false,
	}
	for endpoint, want := range cases {
		if got := isLocal(endpoint); got != want {
			t.Fatalf("isLocal(%q) = %v, want %v", endpoint, got, want)
		}
	}
}

func TestTouchResetsIdleTimer(t *testing.T) {
	d := New("http://example.com", time.Minute, true)
	fixed := time.Now()
	d.now = func() time.Time { return fixed }
	d.Touch()

	d.now = func() time.Time { return fixed.Add(30 * time.Second) }
	if idle := d.idleFor(); idle != 30*time.Second {
		t.Fatalf("expected 30s idle, got %v", idle)
	}
}

func TestPingSkipsLocalEndpointWithoutNetworkCall(t *testing.T) {
	d := New("http://localhost:11434", time.Minute, true)
	if err := d.ping(context.Background()); err != nil {
		t.Fatalf("expected local ping to succeed without a network call: %v", err)
	}
}

func TestPingHitsRemoteEndpoint(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.URL, time.Minute, true)
	if err := d.ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Fatal("expected the test server to receive a ping request")
	}
}

func TestRunExitsImmediatelyWhenDisabled(t *testing.T) {
	d := New("http://example.com", time.Minute, false)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return immediately when disabled")
	}
}

func TestRunPingsAfterIntervalElapses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.URL, 10*time.Millisecond, true)
	d.checkEvery = 20 * time.Millisecond
	// lastActivity is far in the past relative to the fixed "now" the
	// ticker observes on every tick, so idleFor() always exceeds the
	// 10ms Interval and the first tick fires a ping.
	future := time.Now().Add(time.Hour)
	d.now = func() time.Time { return future }
	d.lastActivity = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&hits) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if atomic.LoadInt32(&hits) == 0 {
		t.Fatal("expected at least one ping once the interval elapsed")
	}
}
