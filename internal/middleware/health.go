package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a Dependency that sets no Timeout.
const DefaultCheckTimeout = 2 * time.Second

// Dependency is one external service probed by /healthz.
type Dependency struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

// PingDB checks the journal database connection.
func PingDB(db *sql.DB) func(ctx context.Context) error {
	return db.PingContext
}

// DependencyStatus is the outcome of one check.
type DependencyStatus struct {
	Up        bool   `json:"up"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthReport is the /healthz body. Status is "ok" when every
// dependency is up and "degraded" otherwise.
type HealthReport struct {
	Status    string                      `json:"status"`
	CheckedAt time.Time                   `json:"checked_at"`
	Checks    map[string]DependencyStatus `json:"checks"`
}

// Probe checks all deps concurrently, each under its own deadline, so a
// slow detector cold start does not eat into the journal or archive check.
func Probe(ctx context.Context, deps []Dependency) HealthReport {
	statuses := make([]DependencyStatus, len(deps))
	var g errgroup.Group
	for i, dep := range deps {
		g.Go(func() error {
			statuses[i] = probeOne(ctx, dep)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status:    "ok",
		CheckedAt: time.Now().UTC(),
		Checks:    make(map[string]DependencyStatus, len(deps)),
	}
	for i, dep := range deps {
		report.Checks[dep.Name] = statuses[i]
		if !statuses[i].Up {
			report.Status = "degraded"
		}
	}
	return report
}

func probeOne(ctx context.Context, dep Dependency) DependencyStatus {
	timeout := dep.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	errc := make(chan error, 1)
	go func() { errc <- dep.Check(ctx) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		// the check ignored its context
		err = ctx.Err()
	}

	st := DependencyStatus{Up: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

// HealthHandler serves a Probe of deps; 503 when any is down.
func HealthHandler(deps []Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Probe(r.Context(), deps)

		code := http.StatusOK
		if report.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler answers as long as the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
