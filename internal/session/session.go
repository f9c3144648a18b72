// Package session gives every client its own selection, keyed by the
// X-Session-ID header, and drops selections that have been idle too long.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/selection"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

// HeaderName carries the session id on requests and responses.
const HeaderName = "X-Session-ID"

const maxIDLength = 128

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taxonomy_sessions_active",
		Help: "Sessions currently holding a selection",
	})

	evictedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxonomy_sessions_evicted_total",
		Help: "Sessions dropped after being idle",
	})
)

// Config tunes the registry.
type Config struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// DefaultConfig keeps idle sessions for 30 minutes and sweeps every minute.
func DefaultConfig() Config {
	return Config{IdleTTL: 30 * time.Minute, SweepInterval: time.Minute}
}

type entry struct {
	sel      *selection.Selection
	lastSeen time.Time
}

// Registry owns the selections of all live sessions.
type Registry struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

// NewRegistry creates an empty registry. Call Run to start idle eviction.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

func validID(id string) error {
	if id == "" {
		return apperrors.InvalidInput("session id is required")
	}
	if len(id) > maxIDLength {
		return apperrors.InvalidInput("session id is too long")
	}
	return nil
}

// Get returns the selection of session id, creating an empty one on first
// use, and marks the session as active.
func (r *Registry) Get(id string) (*selection.Selection, error) {
	if err := validID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, apperrors.ErrServiceUnavail
	}
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{sel: selection.New()}
		r.sessions[id] = e
		activeSessions.Inc()
	}
	e.lastSeen = r.now()
	return e.sel, nil
}

// Lookup returns the selection of session id without creating one.
func (r *Registry) Lookup(id string) (*selection.Selection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.sel, true
}

// Drop ends session id and reports whether it existed.
func (r *Registry) Drop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	activeSessions.Dec()
	return true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PurgeAll removes ids from every live selection and returns how many
// selected ids were dropped in total.
func (r *Registry) PurgeAll(ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	r.mu.Lock()
	sels := make([]*selection.Selection, 0, len(r.sessions))
	for _, e := range r.sessions {
		sels = append(sels, e.sel)
	}
	r.mu.Unlock()

	removed := 0
	for _, sel := range sels {
		removed += sel.Purge(ids)
	}
	return removed
}

// Evict drops sessions idle for longer than IdleTTL and returns how many.
func (r *Registry) Evict() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	activeSessions.Sub(float64(n))
	evictedSessions.Add(float64(n))
	return n
}

// Run evicts idle sessions every SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(); n > 0 {
				r.logger.DebugContext(ctx, "evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Close drops every session. Later calls to Get fail.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	activeSessions.Sub(float64(len(r.sessions)))
	clear(r.sessions)
	r.closed = true
}
