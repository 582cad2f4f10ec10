package journal

import (
	"time"

	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
)

// RecordID tipe untuk Record
type RecordID string

// Status enum
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is one finished scan as kept in the journal.
type Record struct {
	ID          RecordID           `json:"id"`
	SessionID   string             `json:"session_id,omitempty"`
	Seq         uint64             `json:"seq"`
	Mode        detection.ScanMode `json:"mode"`
	ImageSHA256 string             `json:"image_sha256"`
	ImageBytes  int                `json:"image_bytes"`
	ContentType string             `json:"content_type"`
	Status      Status             `json:"status"`
	IsFake      bool               `json:"is_fake"`
	Confidence  float64            `json:"confidence"`
	Error       string             `json:"error,omitempty"`
	DurationMS  int64              `json:"duration_ms"`
	ArtifactURL string             `json:"artifact_url,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Result returns the scan result of a successful record.
func (r *Record) Result() (detection.ScanResult, bool) {
	if r.Status != StatusSuccess {
		return detection.ScanResult{}, false
	}
	return detection.ScanResult{IsFake: r.IsFake, Confidence: r.Confidence}, true
}

// Summary value object
type Summary struct {
	Total  int `json:"total_scans"`
	Fake   int `json:"fake"`
	Real   int `json:"real"`
	Failed int `json:"failed"`
}
