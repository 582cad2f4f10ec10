package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

var (
	ErrExplainerDisabled = errors.New("explainer is not configured")
	ErrNoArtifact        = errors.New("scan has no archived image")
	ErrNotExplainable    = errors.New("only successful scans can be explained")
)
