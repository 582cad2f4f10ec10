package scans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/deepcheck/internal/application"
	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
	"github.com/bryanwahyu/deepcheck/internal/domain/journal"
	"github.com/bryanwahyu/deepcheck/internal/domain/session"
)

// Recorder receives scan lifecycle counts.
type Recorder interface {
	ScanStarted()
	ScanFinished(outcome string)
}

// Outcomes passed to Recorder.ScanFinished.
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

type nopRecorder struct{}

func (nopRecorder) ScanStarted()        {}
func (nopRecorder) ScanFinished(string) {}

// Service implements use-cases untuk Scan.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Detector detection.Detector
	Journal  journal.Repository
	Archive  journal.ArchiveStore // nil disables archiving
	Metrics  Recorder
	Clock    application.Clock
	Logger   *slog.Logger

	// MinDisplay is the earliest a successful result is shown after the
	// scan began.
	MinDisplay time.Duration

	// RecordTimeout bounds each archive upload and journal save.
	// Zero means DefaultRecordTimeout.
	RecordTimeout time.Duration
}

// DefaultRecordTimeout is used when Service.RecordTimeout is zero.
const DefaultRecordTimeout = 10 * time.Second

// Ticket identifies a scan started with Start.
type Ticket struct {
	Seq  uint64
	View session.View
	// Done is closed once the scan has been published or dropped and
	// its record written.
	Done <-chan struct{}
}

//
// ==== USE CASES ====
//

// Detect runs one synchronous scan outside any session and journals it.
func (s *Service) Detect(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error) {
	started := s.clock().Now()
	s.metrics().ScanStarted()

	res, err := s.Detector.Detect(ctx, req)
	s.finish(ctx, "", 0, req, res, err, started)
	if err != nil {
		return detection.ScanResult{}, err
	}
	return res, nil
}

// Start begins a scan in sess and returns immediately. The scan runs in
// background until it is published, fails, or is superseded by a later
// Start on the same session.
func (s *Service) Start(sess *session.Session, req detection.ScanRequest) Ticket {
	started := s.clock().Now()
	// jalankan di context.Background() supaya gak ikut cancel bareng request
	ctx, seq := sess.Begin(context.Background(), req.Info, req.Mode, started)
	view := sess.View()
	s.metrics().ScanStarted()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx, sess, seq, req, started)
	}()

	return Ticket{Seq: seq, View: view, Done: done}
}

func (s *Service) run(ctx context.Context, sess *session.Session, seq uint64, req detection.ScanRequest, started time.Time) {
	log := s.logger().With("session", sess.ID, "seq", seq, "mode", req.Mode)

	res, err := s.Detector.Detect(ctx, req)
	if err != nil && ctx.Err() != nil {
		// superseded or closed; the newer scan owns the view
		log.Debug("scan dropped", "reason", ctx.Err())
		s.metrics().ScanFinished(OutcomeSuperseded)
		return
	}

	// the view never waits on the archive or journal
	if err != nil {
		if !sess.Fail(seq, detection.FailureAlert) {
			log.Debug("stale failure dropped")
		}
	} else {
		s.publish(ctx, sess, seq, res, started, log)
	}
	s.finish(context.Background(), sess.ID, seq, req, res, err, started)
}

// publish shows res in sess once MinDisplay has passed since started.
func (s *Service) publish(ctx context.Context, sess *session.Session, seq uint64, res detection.ScanResult, started time.Time, log *slog.Logger) {
	if wait := s.MinDisplay - s.clock().Now().Sub(started); wait > 0 {
		select {
		case <-s.clock().After(wait):
		case <-ctx.Done():
			log.Debug("result dropped while pacing", "reason", ctx.Err())
			return
		}
	}
	if !sess.Complete(seq, res) {
		log.Debug("stale result dropped")
	}
}

// finish logs, counts, archives and journals one finished scan. Archive
// and journal each get RecordTimeout; their failures never fail the scan.
func (s *Service) finish(ctx context.Context, sessionID string, seq uint64, req detection.ScanRequest, res detection.ScanResult, scanErr error, started time.Time) {
	now := s.clock().Now()
	rec := &journal.Record{
		ID:          journal.RecordID(uuid.New().String()),
		SessionID:   sessionID,
		Seq:         seq,
		Mode:        req.Mode,
		ImageSHA256: req.Info.SHA256,
		ImageBytes:  len(req.Image),
		ContentType: req.ContentType,
		DurationMS:  now.Sub(started).Milliseconds(),
		CreatedAt:   now,
	}

	log := s.logger().With("record", rec.ID, "mode", req.Mode, "duration_ms", rec.DurationMS)
	if scanErr != nil {
		rec.Status = journal.StatusFailed
		rec.Error = scanErr.Error()
		s.metrics().ScanFinished(OutcomeFailed)
		log.Warn("scan failed", "error", scanErr, "malformed", errors.Is(scanErr, detection.ErrMalformedResponse))
	} else {
		rec.Status = journal.StatusSuccess
		rec.IsFake = res.IsFake
		rec.Confidence = res.Confidence
		s.metrics().ScanFinished(OutcomeSuccess)
		log.Info("scan finished", "is_fake", res.IsFake, "confidence", res.Confidence)

		if s.Archive != nil {
			key := fmt.Sprintf("%s/%s%s", req.Mode, req.Info.SHA256, req.Extension())
			actx, cancel := context.WithTimeout(ctx, s.recordTimeout())
			url, err := s.Archive.Put(actx, key, req.Image, req.ContentType)
			cancel()
			if err != nil {
				log.Warn("archive upload failed", "key", key, "error", err)
			} else {
				rec.ArtifactURL = url
			}
		}
	}

	if s.Journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(ctx, s.recordTimeout())
	defer cancel()
	if err := s.Journal.Save(jctx, rec); err != nil {
		log.Warn("journal save failed", "error", err)
	}
}

// Latest ambil N scan terakhir
func (s *Service) Latest(ctx context.Context, limit int) ([]*journal.Record, error) {
	return s.Journal.Latest(ctx, limit)
}

// Get ambil 1 record by id
func (s *Service) Get(ctx context.Context, id journal.RecordID) (*journal.Record, error) {
	return s.Journal.Get(ctx, id)
}

// Summary rekap hasil scan N hari terakhir
func (s *Service) Summary(ctx context.Context, sinceDays int) (journal.Summary, error) {
	since := s.clock().Now().AddDate(0, 0, -sinceDays)
	return s.Journal.Summary(ctx, since)
}

// Now is the service clock's current time.
func (s *Service) Now() time.Time { return s.clock().Now() }

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) recordTimeout() time.Duration {
	if s.RecordTimeout <= 0 {
		return DefaultRecordTimeout
	}
	return s.RecordTimeout
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) metrics() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}
