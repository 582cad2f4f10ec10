package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/bryanwahyu/deepcheck/internal/domain/journal"
)

// JournalRepository keeps records in process memory, newest last.
type JournalRepository struct {
	mu      sync.RWMutex
	records []*domain.Record
	byID    map[domain.RecordID]*domain.Record
	max     int
}

// NewJournalRepository keeps at most max records (0 means unbounded);
// the oldest are evicted first.
func NewJournalRepository(max int) *JournalRepository {
	return &JournalRepository{byID: make(map[domain.RecordID]*domain.Record), max: max}
}

func (r *JournalRepository) Save(_ context.Context, rec *domain.Record) error {
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[cp.ID]; ok {
		*old = cp
		return nil
	}
	r.records = append(r.records, &cp)
	r.byID[cp.ID] = &cp
	if r.max > 0 && len(r.records) > r.max {
		evict := r.records[0]
		r.records = r.records[1:]
		delete(r.byID, evict.ID)
	}
	return nil
}

func (r *JournalRepository) Get(_ context.Context, id domain.RecordID) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *JournalRepository) Latest(_ context.Context, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	out := make([]*domain.Record, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JournalRepository) Summary(_ context.Context, since time.Time) (domain.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s domain.Summary
	for _, rec := range r.records {
		if rec.CreatedAt.Before(since) {
			continue
		}
		s.Total++
		switch {
		case rec.Status != domain.StatusSuccess:
			s.Failed++
		case rec.IsFake:
			s.Fake++
		default:
			s.Real++
		}
	}
	return s, nil
}
