package ai

import (
	"context"

	"github.com/bryanwahyu/deepcheck/internal/domain/ai"
	"github.com/bryanwahyu/deepcheck/internal/domain/journal"
)

type Service struct {
	client  ai.Explainer
	journal journal.Repository
}

// NewService returns a service that explains journaled scans. client may
// be nil, in which case every call fails with ai.ErrExplainerDisabled.
func NewService(client ai.Explainer, repo journal.Repository) *Service {
	return &Service{client: client, journal: repo}
}

// Enabled reports whether an explainer is configured.
func (s *Service) Enabled() bool { return s != nil && s.client != nil }

// Explain looks up a scan record and asks the explainer about its image.
func (s *Service) Explain(ctx context.Context, id journal.RecordID) (ai.Explanation, error) {
	if !s.Enabled() {
		return ai.Explanation{}, ai.ErrExplainerDisabled
	}
	rec, err := s.journal.Get(ctx, id)
	if err != nil {
		return ai.Explanation{}, err
	}
	res, ok := rec.Result()
	if !ok {
		return ai.Explanation{}, ai.ErrNotExplainable
	}
	if rec.ArtifactURL == "" {
		return ai.Explanation{}, ai.ErrNoArtifact
	}
	return s.client.Explain(ctx, ai.ExplainRequest{
		ImageURL:   rec.ArtifactURL,
		Mode:       string(rec.Mode),
		IsFake:     res.IsFake,
		Confidence: res.Confidence,
	})
}
