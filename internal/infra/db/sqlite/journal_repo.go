package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/deepcheck/internal/domain/journal"
)

// JournalRepository stores records in SQLite. created_at is kept as
// unix nanoseconds.
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
ON CONFLICT(id) DO UPDATE SET
 status=excluded.status, is_fake=excluded.is_fake, confidence=excluded.confidence,
 error_message=excluded.error_message, duration_ms=excluded.duration_ms,
 artifact_url=excluded.artifact_url;
`
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.SessionID, int64(rec.Seq), string(rec.Mode), rec.ImageSHA256, rec.ImageBytes, rec.ContentType,
		string(rec.Status), boolToInt(rec.IsFake), rec.Confidence, rec.Error, rec.DurationMS, rec.ArtifactURL,
		created.UnixNano(),
	)
	return err
}

func (r *JournalRepository) Get(ctx context.Context, id domain.RecordID) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM scan_journal WHERE id=? LIMIT 1`, id)
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
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM scan_journal ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
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
  COALESCE(SUM(CASE WHEN status='success' AND is_fake=1 THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN status='success' AND is_fake=0 THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN status<>'success' THEN 1 ELSE 0 END),0)
FROM scan_journal
WHERE created_at >= ?;
`
	var s domain.Summary
	err := r.db.QueryRowContext(ctx, q, since.UnixNano()).Scan(&s.Total, &s.Fake, &s.Real, &s.Failed)
	return s, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		rec     domain.Record
		seq     int64
		isFake  int64
		created int64
	)
	if err := row.Scan(
		&rec.ID, &rec.SessionID, &seq, &rec.Mode, &rec.ImageSHA256, &rec.ImageBytes, &rec.ContentType,
		&rec.Status, &isFake, &rec.Confidence, &rec.Error, &rec.DurationMS, &rec.ArtifactURL, &created,
	); err != nil {
		return nil, err
	}
	rec.Seq = uint64(seq)
	rec.IsFake = isFake != 0
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
