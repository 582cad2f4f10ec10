package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/deepcheck/internal/domain/journal"
)

type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

const columns = `id, session_id, seq, mode, image_sha256, image_bytes, content_type,
       status, is_fake, confidence, error_message, duration_ms, artifact_url, created_at`

// Save insert/update Record
func (r *JournalRepository) Save(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO scan_journal (` + columns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status), is_fake=VALUES(is_fake), confidence=VALUES(confidence),
 error_message=VALUES(error_message), duration_ms=VALUES(duration_ms),
 artifact_url=VALUES(artifact_url);
`
	// Ensure non-nullable string fields have safe defaults
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, stringOrDash(rec.SessionID), rec.Seq, string(rec.Mode), rec.ImageSHA256, rec.ImageBytes,
		stringOrDash(rec.ContentType), string(rec.Status), rec.IsFake, rec.Confidence, rec.Error,
		rec.DurationMS, rec.ArtifactURL, created.UTC(),
	)
	return err
}

// Get by ID
func (r *JournalRepository) Get(ctx context.Context, id domain.RecordID) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM scan_journal WHERE id=? LIMIT 1;`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	return rec, err
}

// Latest records, newest first
func (r *JournalRepository) Latest(ctx context.Context, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM scan_journal ORDER BY created_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary counts verdicts since the given time
func (r *JournalRepository) Summary(ctx context.Context, since time.Time) (domain.Summary, error) {
	const q = `
SELECT
  COUNT(*),
  COALESCE(SUM(status='success' AND is_fake=1),0),
  COALESCE(SUM(status='success' AND is_fake=0),0),
  COALESCE(SUM(status<>'success'),0)
FROM scan_journal
WHERE created_at >= ?;
`
	var s domain.Summary
	err := r.db.QueryRowContext(ctx, q, since.UTC()).Scan(&s.Total, &s.Fake, &s.Real, &s.Failed)
	return s, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	if err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.Seq, &rec.Mode, &rec.ImageSHA256, &rec.ImageBytes, &rec.ContentType,
		&rec.Status, &rec.IsFake, &rec.Confidence, &rec.Error, &rec.DurationMS, &rec.ArtifactURL, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.SessionID = dashToEmpty(rec.SessionID)
	rec.ContentType = dashToEmpty(rec.ContentType)
	return &rec, nil
}
