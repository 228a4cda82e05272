// Package twitch runs the external event adapters: the chat connection and
// the follower poller, one live handle per (session, kind).
package twitch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lumen-overlay/backend/pkg/metrics"
)

// Adapter kinds.
const (
	KindChat   = "chat"
	KindFollow = "follow"
)

// Publisher fans a payload out to every live connection of a session.
type Publisher interface {
	Publish(sessionKey, topic string, payload interface{})
}

// Runner is the long-lived body of one adapter instance. It must return
// promptly once ctx is cancelled.
type Runner func(ctx context.Context, sessionKey, target string)

// Registry enforces the adapter lifecycle: at most one live handle per
// session, idempotent Start for the same target, implicit replacement for a
// different target, and Stop that cancels in-flight I/O before returning.
type Registry struct {
	kind   string
	run    Runner
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*handle
}

type handle struct {
	target string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates an adapter registry for one kind.
func NewRegistry(kind string, run Runner, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		kind:    kind,
		run:     run,
		logger:  logger,
		handles: make(map[string]*handle),
	}
}

// Start begins monitoring target for the session. Starting the same target
// again is a no-op; a different target stops the old handle first, so a stale
// adapter can never race the new one.
func (r *Registry) Start(sessionKey, target string) {
	r.mu.Lock()
	if h := r.handles[sessionKey]; h != nil {
		if h.target == target {
			r.mu.Unlock()
			return
		}
		r.stopLocked(sessionKey, h)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{target: target, cancel: cancel, done: make(chan struct{})}
	r.handles[sessionKey] = h
	r.mu.Unlock()

	metrics.AdaptersActive.WithLabelValues(r.kind).Inc()
	r.logger.Info("adapter started",
		zap.String("kind", r.kind), zap.String("session_key", sessionKey), zap.String("target", target))
	go func() {
		defer close(h.done)
		r.run(ctx, sessionKey, target)
	}()
}

// Stop cancels the session's adapter and waits for its goroutine to exit.
func (r *Registry) Stop(sessionKey string) {
	r.mu.Lock()
	h := r.handles[sessionKey]
	if h == nil {
		r.mu.Unlock()
		return
	}
	r.stopLocked(sessionKey, h)
	r.mu.Unlock()
}

// stopLocked cancels and waits with r.mu held. Runners never call back into
// the registry, so holding the lock across the wait cannot deadlock.
func (r *Registry) stopLocked(sessionKey string, h *handle) {
	h.cancel()
	<-h.done
	delete(r.handles, sessionKey)
	metrics.AdaptersActive.WithLabelValues(r.kind).Dec()
	r.logger.Info("adapter stopped",
		zap.String("kind", r.kind), zap.String("session_key", sessionKey), zap.String("target", h.target))
}

// IsActive reports whether the session has a live handle.
func (r *Registry) IsActive(sessionKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[sessionKey] != nil
}

// Target returns the monitored target for the session, if active.
func (r *Registry) Target(sessionKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h := r.handles[sessionKey]; h != nil {
		return h.target, true
	}
	return "", false
}

// StopAll stops every adapter of this kind (process shutdown).
func (r *Registry) StopAll() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	for _, k := range keys {
		r.stopLocked(k, r.handles[k])
	}
	r.mu.Unlock()
}
