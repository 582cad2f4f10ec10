package journal

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("scan record not found")

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, id RecordID) (*Record, error)
	Latest(ctx context.Context, limit int) ([]*Record, error)
	Summary(ctx context.Context, since time.Time) (Summary, error)
}

// ArchiveStore port (interface untuk penyimpanan gambar)
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
