package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
)

var ErrSessionNotFound = errors.New("session not found")

// Session owns one user's view and the cancel func of its outstanding scan.
// Safe for concurrent use.
type Session struct {
	ID string

	mu       sync.Mutex
	view     View
	seq      uint64
	cancel   context.CancelFunc
	alerts   []string
	lastSeen time.Time
}

// New returns an idle session.
func New(id string, mode detection.ScanMode, now time.Time) *Session {
	return &Session{ID: id, view: Idle(mode), lastSeen: now}
}

// View returns the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Snapshot returns the view and drains pending alerts. Alerts are
// ephemeral: each one is handed out exactly once.
func (s *Session) Snapshot(now time.Time) (View, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	alerts := s.alerts
	s.alerts = nil
	return s.view, alerts
}

// SelectMode sets the mode used by the next scan.
func (s *Session) SelectMode(mode detection.ScanMode) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = s.view.WithMode(mode)
	return s.view
}

// Begin starts a new scan and returns its context and sequence number.
// The previous scan, if still running, is cancelled and can no longer
// change the view.
func (s *Session) Begin(parent context.Context, preview detection.ImageInfo, mode detection.ScanMode, now time.Time) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.seq++
	s.view = s.view.Select(s.seq, preview, mode)
	s.lastSeen = now
	return ctx, s.seq
}

// Complete publishes the result of scan seq. Stale results are dropped.
func (s *Session) Complete(seq uint64, r detection.ScanResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.view.Succeed(seq, r)
	if !ok {
		return false
	}
	s.view = v
	s.release(seq)
	return true
}

// Fail records the failure of scan seq and queues one alert.
// Stale failures are dropped without an alert.
func (s *Session) Fail(seq uint64, alert string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.view.Fail(seq)
	if !ok {
		return false
	}
	s.view = v
	s.alerts = append(s.alerts, alert)
	s.release(seq)
	return true
}

// Current reports whether seq is still the outstanding scan.
func (s *Session) Current(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Phase == PhaseScanning && s.view.Seq == seq
}

// LastSeen is the last time the session was read or written.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close cancels any outstanding scan.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// release must be called with mu held.
func (s *Session) release(seq uint64) {
	if s.seq == seq && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
