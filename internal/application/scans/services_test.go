package scans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
	"github.com/bryanwahyu/deepcheck/internal/domain/journal"
	"github.com/bryanwahyu/deepcheck/internal/domain/session"
	"github.com/bryanwahyu/deepcheck/internal/infra/db/memory"
)

type detectorFunc func(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error)

func (f detectorFunc) Detect(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error) {
	return f(ctx, req)
}

type countingRecorder struct {
	mu       sync.Mutex
	started  int
	outcomes map[string]int
}

func (r *countingRecorder) ScanStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) ScanFinished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome]++
}

func (r *countingRecorder) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[outcome]
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchive) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return "http://archive.local/bucket/" + key, nil
}

// manualClock never advances on its own; After fires when release is closed.
type manualClock struct {
	now     time.Time
	release chan time.Time
	waits   chan time.Duration
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.waits <- d
	return c.release
}

func scanRequest(mode detection.ScanMode, payload byte) detection.ScanRequest {
	// 0x00 prefix makes the bytes opaque, so the declared type is used
	data := []byte{0x00, payload, 0x02, 0x03}
	req, err := detection.NewScanRequest(data, "img.png", "image/png", mode)
	if err != nil {
		panic(err)
	}
	return req
}

func waitDone(t *testing.T, tk Ticket) {
	t.Helper()
	select {
	case <-tk.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not finish in time")
	}
}

func TestStartSuccess(t *testing.T) {
	t.Parallel()

	repo := memory.NewJournalRepository(0)
	rec := &countingRecorder{}
	archive := &fakeArchive{}
	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{IsFake: true, Confidence: 0.87}, nil
		}),
		Journal: repo,
		Archive: archive,
		Metrics: rec,
	}
	sess := session.New("s1", detection.ModeXception, time.Now())

	tk := svc.Start(sess, scanRequest(detection.ModeXception, 1))
	if !tk.View.Loading() || tk.View.Result != nil {
		t.Fatalf("ticket view should be scanning without result: %+v", tk.View)
	}
	waitDone(t, tk)

	v, alerts := sess.Snapshot(time.Now())
	if v.Phase != session.PhaseResultReady {
		t.Fatalf("phase = %q, want result_ready", v.Phase)
	}
	if *v.Result != (detection.ScanResult{IsFake: true, Confidence: 0.87}) {
		t.Errorf("result = %+v", *v.Result)
	}
	if len(alerts) != 0 {
		t.Errorf("unexpected alerts: %v", alerts)
	}
	if p := v.Presentation(); p == nil || p.Confidence != "87.0%" {
		t.Errorf("presentation = %+v, want 87.0%%", p)
	}

	list, _ := repo.Latest(context.Background(), 10)
	if len(list) != 1 {
		t.Fatalf("expected 1 journal record, got %d", len(list))
	}
	r := list[0]
	if r.Status != journal.StatusSuccess || r.SessionID != "s1" || r.Seq != tk.Seq {
		t.Errorf("unexpected record: %+v", r)
	}
	if r.ArtifactURL == "" || len(archive.keys) != 1 {
		t.Errorf("expected the image to be archived, got url=%q keys=%v", r.ArtifactURL, archive.keys)
	}
	if want := "Xception/" + r.ImageSHA256 + ".png"; archive.keys[0] != want {
		t.Errorf("archive key = %q, want %q", archive.keys[0], want)
	}
	if rec.started != 1 || rec.count(OutcomeSuccess) != 1 {
		t.Errorf("metrics started=%d success=%d", rec.started, rec.count(OutcomeSuccess))
	}
}

func TestStartFailureAlertsOnce(t *testing.T) {
	t.Parallel()

	repo := memory.NewJournalRepository(0)
	archive := &fakeArchive{}
	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{}, fmt.Errorf("%w: dial tcp: connection refused", detection.ErrTransport)
		}),
		Journal: repo,
		Archive: archive,
	}
	sess := session.New("s1", detection.ModeXception, time.Now())

	waitDone(t, svc.Start(sess, scanRequest(detection.ModeXception, 1)))

	v, alerts := sess.Snapshot(time.Now())
	if v.Loading() || v.Result != nil || v.Phase != session.PhaseIdle {
		t.Errorf("failed scan should leave an idle view without result: %+v", v)
	}
	if len(alerts) != 1 || alerts[0] != detection.FailureAlert {
		t.Errorf("alerts = %v, want one %q", alerts, detection.FailureAlert)
	}
	if len(archive.keys) != 0 {
		t.Errorf("failed scans must not be archived: %v", archive.keys)
	}

	list, _ := repo.Latest(context.Background(), 10)
	if len(list) != 1 || list[0].Status != journal.StatusFailed || list[0].Error == "" {
		t.Errorf("expected one failed record with an error, got %+v", list)
	}
}

func TestStartSupersedes(t *testing.T) {
	t.Parallel()

	inFlight := make(chan struct{})
	rec := &countingRecorder{}
	svc := &Service{
		Detector: detectorFunc(func(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error) {
			if req.Mode == detection.ModeXception {
				close(inFlight)
				<-ctx.Done()
				return detection.ScanResult{}, fmt.Errorf("%w: %w", detection.ErrTransport, ctx.Err())
			}
			return detection.ScanResult{IsFake: false, Confidence: 0.5}, nil
		}),
		Metrics: rec,
	}
	sess := session.New("s1", detection.ModeXception, time.Now())

	first := svc.Start(sess, scanRequest(detection.ModeXception, 1))
	<-inFlight
	second := svc.Start(sess, scanRequest(detection.ModeMobileNet, 2))
	waitDone(t, first)
	waitDone(t, second)

	v, alerts := sess.Snapshot(time.Now())
	if len(alerts) != 0 {
		t.Errorf("a superseded scan must not alert: %v", alerts)
	}
	if v.Seq != second.Seq || v.Result == nil || v.Result.Confidence != 0.5 {
		t.Errorf("expected the second scan's result, got %+v", v)
	}
	if rec.count(OutcomeSuperseded) != 1 || rec.count(OutcomeSuccess) != 1 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestStartNewImageResetsResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	svc := &Service{
		Detector: detectorFunc(func(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error) {
			if req.Mode == detection.ModeMobileNet {
				<-release
			}
			return detection.ScanResult{IsFake: true, Confidence: 0.9}, nil
		}),
	}
	sess := session.New("s1", detection.ModeXception, time.Now())

	waitDone(t, svc.Start(sess, scanRequest(detection.ModeXception, 1)))
	if sess.View().Result == nil {
		t.Fatal("expected a result from the first scan")
	}

	second := svc.Start(sess, scanRequest(detection.ModeMobileNet, 2))
	if second.View.Result != nil || sess.View().Result != nil {
		t.Error("selecting a new image must clear the displayed result immediately")
	}
	if !sess.View().Loading() {
		t.Error("session should be scanning")
	}
	close(release)
	waitDone(t, second)
	if sess.View().Result == nil {
		t.Error("second scan should publish its result")
	}
}

func TestStartHoldsResultForMinDisplay(t *testing.T) {
	t.Parallel()

	clock := &manualClock{
		now:     time.Now(),
		release: make(chan time.Time),
		waits:   make(chan time.Duration, 1),
	}
	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{IsFake: true, Confidence: 0.6}, nil
		}),
		Clock:      clock,
		MinDisplay: 800 * time.Millisecond,
	}
	sess := session.New("s1", detection.ModeXception, clock.now)

	tk := svc.Start(sess, scanRequest(detection.ModeXception, 1))

	select {
	case d := <-clock.waits:
		if d != 800*time.Millisecond {
			t.Errorf("waited %v, want 800ms", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scan never paced its result")
	}
	if !sess.View().Loading() {
		t.Error("result must not be shown before the minimum display delay")
	}

	close(clock.release)
	waitDone(t, tk)
	if sess.View().Phase != session.PhaseResultReady {
		t.Errorf("phase = %q, want result_ready", sess.View().Phase)
	}
}

func TestStartFailureIsNotDelayed(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Now(), release: make(chan time.Time), waits: make(chan time.Duration, 1)}
	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{}, detection.ErrMalformedResponse
		}),
		Clock:      clock,
		MinDisplay: time.Hour,
	}
	sess := session.New("s1", detection.ModeXception, clock.now)

	waitDone(t, svc.Start(sess, scanRequest(detection.ModeXception, 1)))
	if sess.View().Loading() {
		t.Error("failure must clear loading at once")
	}
	select {
	case d := <-clock.waits:
		t.Errorf("failure should not wait, waited %v", d)
	default:
	}
}

func TestDetectJournalsWithoutSession(t *testing.T) {
	t.Parallel()

	repo := memory.NewJournalRepository(0)
	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{IsFake: false, Confidence: 0.25}, nil
		}),
		Journal: repo,
	}

	res, err := svc.Detect(context.Background(), scanRequest(detection.ModeMobileNet, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confidence != 0.25 {
		t.Errorf("confidence = %v, want 0.25", res.Confidence)
	}

	list, err := svc.Latest(context.Background(), 5)
	if err != nil || len(list) != 1 {
		t.Fatalf("Latest = %v, %v", list, err)
	}
	if list[0].SessionID != "" || list[0].Mode != detection.ModeMobileNet {
		t.Errorf("unexpected record: %+v", list[0])
	}

	got, err := svc.Get(context.Background(), list[0].ID)
	if err != nil || got.ID != list[0].ID {
		t.Errorf("Get = %+v, %v", got, err)
	}

	sum, err := svc.Summary(context.Background(), 7)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 1 || sum.Real != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestDetectReturnsScanError(t *testing.T) {
	t.Parallel()

	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{}, detection.ErrMalformedResponse
		}),
		Archive: &fakeArchive{err: errors.New("unused")},
	}
	_, err := svc.Detect(context.Background(), scanRequest(detection.ModeXception, 1))
	if !errors.Is(err, detection.ErrScanFailed) {
		t.Errorf("expected ErrScanFailed, got %v", err)
	}
}

func TestArchiveFailureDoesNotFailScan(t *testing.T) {
	t.Parallel()

	repo := memory.NewJournalRepository(0)
	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{IsFake: true, Confidence: 0.7}, nil
		}),
		Journal: repo,
		Archive: &fakeArchive{err: errors.New("bucket offline")},
	}

	if _, err := svc.Detect(context.Background(), scanRequest(detection.ModeXception, 1)); err != nil {
		t.Fatalf("archive errors must not fail the scan: %v", err)
	}
	list, _ := repo.Latest(context.Background(), 1)
	if len(list) != 1 || list[0].ArtifactURL != "" || list[0].Status != journal.StatusSuccess {
		t.Errorf("unexpected record: %+v", list)
	}
}

// stalledArchive blocks every upload until its context ends.
type stalledArchive struct {
	entered chan struct{}
	once    sync.Once
	err     chan error
}

func (a *stalledArchive) Put(ctx context.Context, _ string, _ []byte, _ string) (string, error) {
	a.once.Do(func() { close(a.entered) })
	<-ctx.Done()
	a.err <- ctx.Err()
	return "", ctx.Err()
}

func TestStalledArchiveDoesNotHoldResult(t *testing.T) {
	t.Parallel()

	repo := memory.NewJournalRepository(0)
	archive := &stalledArchive{entered: make(chan struct{}), err: make(chan error, 1)}
	svc := &Service{
		Detector: detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
			return detection.ScanResult{IsFake: true, Confidence: 0.87}, nil
		}),
		Journal:       repo,
		Archive:       archive,
		RecordTimeout: 50 * time.Millisecond,
	}
	sess := session.New("s1", detection.ModeXception, time.Now())

	tk := svc.Start(sess, scanRequest(detection.ModeXception, 1))
	select {
	case <-archive.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("archive upload never started")
	}

	v := sess.View()
	if v.Phase != session.PhaseResultReady || v.Loading() {
		t.Fatalf("result must be shown while the archive is stalled, got phase=%q", v.Phase)
	}
	if v.Result == nil || v.Result.Confidence != 0.87 {
		t.Errorf("result = %+v, want confidence 0.87", v.Result)
	}

	waitDone(t, tk)
	if err := <-archive.err; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("archive context ended with %v, want deadline exceeded", err)
	}
	list, _ := repo.Latest(context.Background(), 1)
	if len(list) != 1 || list[0].Status != journal.StatusSuccess || list[0].ArtifactURL != "" {
		t.Errorf("expected a success record without artifact, got %+v", list)
	}
}
