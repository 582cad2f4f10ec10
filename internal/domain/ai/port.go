package ai

import "context"

// ExplainRequest carries a finished verdict and where its image lives.
type ExplainRequest struct {
	ImageURL   string
	Mode       string
	IsFake     bool
	Confidence float64
}

// Explanation is the structured answer of the explainer.
type Explanation struct {
	Summary string   `json:"summary"`
	Signals []string `json:"signals"`
	Caveat  string   `json:"caveat,omitempty"`
}

type Explainer interface {
	Explain(ctx context.Context, req ExplainRequest) (Explanation, error)
}
