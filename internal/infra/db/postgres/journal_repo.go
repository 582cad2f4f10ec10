package postgres

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

func NewJournalRepository(db *sql.DB) *JournalRepository { return &JournalRepository{db: db} }

const columns = `id, session_id, seq, mode, image_sha256, image_bytes, content_type,
       status, is_fake, confidence, error_message, duration_ms, artifact_url, created_at`

// Save inserts or updates a record
func (r *JournalRepository) Save(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO scan_journal (` + columns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  status=EXCLUDED.status,
  is_fake=EXCLUDED.is_fake,
  confidence=EXCLUDED.confidence,
  error_message=EXCLUDED.error_message,
  duration_ms=EXCLUDED.duration_ms,
  artifact_url=EXCLUDED.artifact_url;
`
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.SessionID, int64(rec.Seq), string(rec.Mode), rec.ImageSHA256, rec.ImageBytes, rec.ContentType,
		string(rec.Status), rec.IsFake, rec.Confidence, rec.Error, rec.DurationMS, rec.ArtifactURL, created,
	)
	return err
}

func (r *JournalRepository) Get(ctx context.Context, id domain.RecordID) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM scan_journal WHERE id=$1 LIMIT 1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	return rec, err
}

func (r *JournalRepository) Latest(ctx context.Context, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM scan_journal ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
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

func (r *JournalRepository) Summary(ctx context.Context, since time.Time) (domain.Summary, error) {
	const q = `
SELECT
  COUNT(*),
  COUNT(*) FILTER (WHERE status='success' AND is_fake),
  COUNT(*) FILTER (WHERE status='success' AND NOT is_fake),
  COUNT(*) FILTER (WHERE status<>'success')
FROM scan_journal
WHERE created_at >= $1;
`
	var s domain.Summary
	err := r.db.QueryRowContext(ctx, q, since).Scan(&s.Total, &s.Fake, &s.Real, &s.Failed)
	return s, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		rec domain.Record
		seq int64
	)
	if err := row.Scan(
		&rec.ID, &rec.SessionID, &seq, &rec.Mode, &rec.ImageSHA256, &rec.ImageBytes, &rec.ContentType,
		&rec.Status, &rec.IsFake, &rec.Confidence, &rec.Error, &rec.DurationMS, &rec.ArtifactURL, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Seq = uint64(seq)
	return &rec, nil
}
