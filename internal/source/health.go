package source

import (
	"sync"

	"go.uber.org/zap"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
)

// DefaultDownAfter is the number of consecutive failures that mark a source down.
const DefaultDownAfter = 3

// HealthTracker tracks the health of one adapter.
// A success restores healthy; a failure degrades; DownAfter consecutive failures mark it down.
// Safe for concurrent use.
type HealthTracker struct {
	name      string
	downAfter int
	logger    *zap.Logger

	mu       sync.RWMutex
	state    domain.SourceHealth
	failures int
}

// NewHealthTracker creates a tracker starting healthy.
func NewHealthTracker(name string, downAfter int, logger *zap.Logger) *HealthTracker {
	if downAfter <= 0 {
		downAfter = DefaultDownAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthTracker{
		name:      name,
		downAfter: downAfter,
		logger:    logger,
		state:     domain.HealthHealthy,
	}
	observability.UpdateSourceHealth(name, h.state.Gauge())
	return h
}

// RecordSuccess marks the source healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures = 0
	h.transition(domain.HealthHealthy)
}

// RecordFailure counts a failed fetch.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	if h.failures >= h.downAfter {
		h.transition(domain.HealthDown)
		return
	}
	h.transition(domain.HealthDegraded)
}

// State returns the current health.
func (h *HealthTracker) State() domain.SourceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// caller holds mu.
func (h *HealthTracker) transition(next domain.SourceHealth) {
	if h.state == next {
		return
	}
	h.logger.Info("source health changed",
		zap.String("source", h.name),
		zap.Stringer("from", h.state),
		zap.Stringer("to", next),
		zap.Int("consecutive_failures", h.failures))
	h.state = next
	observability.UpdateSourceHealth(h.name, next.Gauge())
}
