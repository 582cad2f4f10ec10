package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/deepcheck/internal/application/scans"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64
	ScansTotal         atomic.Uint64
	ScansRunning       atomic.Int64
	ScansSucceeded     atomic.Uint64
	ScansFailed        atomic.Uint64
	ScansSuperseded    atomic.Uint64
	StartTime          time.Time
}

// NewMetrics returns zeroed counters starting now.
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

var _ scans.Recorder = (*Metrics)(nil)

// ScanStarted implements scans.Recorder.
func (m *Metrics) ScanStarted() {
	m.ScansTotal.Add(1)
	m.ScansRunning.Add(1)
}

// ScanFinished implements scans.Recorder.
func (m *Metrics) ScanFinished(outcome string) {
	m.ScansRunning.Add(-1)
	switch outcome {
	case scans.OutcomeSuccess:
		m.ScansSucceeded.Add(1)
	case scans.OutcomeSuperseded:
		m.ScansSuperseded.Add(1)
	default:
		m.ScansFailed.Add(1)
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"scans_total":          m.ScansTotal.Load(),
		"scans_running":        m.ScansRunning.Load(),
		"scans_succeeded":      m.ScansSucceeded.Load(),
		"scans_failed":         m.ScansFailed.Load(),
		"scans_superseded":     m.ScansSuperseded.Load(),
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		// Wrap response writer to capture status
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		// Track success/failure based on status code
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
