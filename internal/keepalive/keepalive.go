// Package keepalive pings the external embedding endpoint during idle
// periods to avoid cold starts, grounded on
// original_source/src/embedding_keepalive.py's EmbeddingKeepAlive.
package keepalive

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kristoman/standardgpt/internal/logger"
)

const (
	defaultPingInterval = 10 * time.Minute
	checkEvery          = time.Minute
	pingTimeout         = 10 * time.Second
)

// Daemon pings Endpoint whenever it has seen no embedding activity for
// Interval. It implements embedding.Activity so the embedding client can
// reset its idle timer on every real call, the same way
// EmbeddingKeepAlive.update_activity is invoked from both the timer loop
// and real traffic in the original.
type Daemon struct {
	Endpoint string
	Interval time.Duration
	Enabled  bool

	httpClient *http.Client
	now        func() time.Time
	checkEvery time.Duration

	mu           sync.Mutex
	lastActivity time.Time
}

// New constructs a Daemon. A zero interval defaults to 10 minutes, matching
// EMBEDDING_KEEPALIVE_INTERVAL_MINUTES's default.
func New(endpoint string, interval time.Duration, enabled bool) *Daemon {
	if interval <= 0 {
		interval = defaultPingInterval
	}
	now := time.Now
	return &Daemon{
		Endpoint:     endpoint,
		Interval:     interval,
		Enabled:      enabled,
		httpClient:   &http.Client{Timeout: pingTimeout},
		now:          now,
		checkEvery:   checkEvery,
		lastActivity: now(),
	}
}

// Touch records activity, postponing the next ping.
func (d *Daemon) Touch() {
	d.mu.Lock()
	d.lastActivity = d.now()
	d.mu.Unlock()
}

func (d *Daemon) idleFor() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now().Sub(d.lastActivity)
}

// isLocal reports whether endpoint resolves to a loopback address, in
// which case keep-alive pings are pointless (mirrors the Python
// "127.0.0.1" / "localhost" in EMBEDDING_API_ENDPOINT check).
func isLocal(endpoint string) bool {
	return endpoint == "" || strings.Contains(endpoint, "127.0.0.1") || strings.Contains(endpoint, "localhost")
}

// Run blocks, checking every minute whether Interval has elapsed since the
// last activity and pinging Endpoint if so, until ctx is cancelled. Intended
// to be started in its own goroutine at startup.
func (d *Daemon) Run(ctx context.Context) {
	if !d.Enabled {
		logger.Info(ctx, "keepalive: disabled by configuration")
		return
	}
	logger.Info(ctx, "keepalive: starting embedding API keep-alive service")

	ticker := time.NewTicker(d.checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "keepalive: stopped")
			return
		case <-ticker.C:
			if d.idleFor() >= d.Interval {
				if err := d.ping(ctx); err != nil {
					logger.Warnf(ctx, "keepalive: ping failed: %v", err)
				}
				d.Touch()
			}
		}
	}
}

// ping sends a minimal request to Endpoint. A local endpoint is treated as
// an unconditional success without any network call.
func (d *Daemon) ping(ctx context.Context) error {
	if isLocal(d.Endpoint) {
		return nil
	}

	body, _ := json.Marshal(map[string]string{"text": "ping"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warnf(ctx, "keepalive: ping returned status %d", resp.StatusCode)
	}
	return nil
}
