package scans

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/deepcheck/internal/application"
	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
	"github.com/bryanwahyu/deepcheck/internal/domain/session"
)

// Registry keeps the live sessions in memory. Sessions vanish when the
// process exits or after TTL without activity.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	ttl   time.Duration
	mode  detection.ScanMode
	clock application.Clock
}

func NewRegistry(clock application.Clock, ttl time.Duration, mode detection.ScanMode) *Registry {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Registry{
		sessions: make(map[string]*session.Session),
		ttl:      ttl,
		mode:     mode,
		clock:    clock,
	}
}

// Create opens a new idle session.
func (r *Registry) Create() *session.Session {
	s := session.New(uuid.New().String(), r.mode, r.clock.Now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session or session.ErrSessionNotFound.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s, nil
}

// Delete closes and forgets a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return session.ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how
// many were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	now := r.clock.Now()
	var stale []*session.Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > r.ttl {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 && logger != nil {
				logger.Debug("expired sessions removed", "count", n, "live", r.Len())
			}
		}
	}
}

// CloseAll cancels every outstanding scan. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
