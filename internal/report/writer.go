// Package report renders the outcome of a batch of file scans.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/bryanwahyu/deepcheck/internal/application/scans"
	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
)

// Supported output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Writer renders a Report.
type Writer interface {
	Write(r *Report) error
}

// New returns the writer for format.
func New(format string, out io.Writer) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewTextWriter(out), nil
	case FormatJSON:
		return NewJSONWriter(out), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(out), nil
	}
	return nil, fmt.Errorf("unknown report format %q (want text, json or markdown)", format)
}

// Entry is one scanned file.
type Entry struct {
	Path       string  `json:"path"`
	Mode       string  `json:"mode"`
	Status     string  `json:"status"`
	Verdict    string  `json:"verdict,omitempty"`
	IsFake     *bool   `json:"is_fake,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Display    string  `json:"display,omitempty"`
	Format     string  `json:"format,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Bytes      int     `json:"bytes,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS int64   `json:"duration_ms"`
}

// Entry statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Report is a batch of entries plus counts.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Entries     []Entry   `json:"entries"`
	Fake        int       `json:"fake"`
	Real        int       `json:"real"`
	Failed      int       `json:"failed"`
}

// NewReport converts batch results.
func NewReport(results []scans.FileResult, endpoint string, now time.Time) *Report {
	r := &Report{GeneratedAt: now, Endpoint: endpoint, Entries: make([]Entry, 0, len(results))}
	for _, fr := range results {
		e := Entry{
			Path:       fr.Path,
			Mode:       fr.Mode.String(),
			Format:     fr.Info.Format,
			Width:      fr.Info.Width,
			Height:     fr.Info.Height,
			Bytes:      fr.Info.Size,
			DurationMS: fr.Duration.Milliseconds(),
		}
		switch {
		case fr.Err != nil:
			e.Status = StatusFailed
			e.Error = fr.Err.Error()
			r.Failed++
		case fr.Result != nil:
			isFake := fr.Result.IsFake
			e.Status = StatusOK
			e.Verdict = fr.Result.Verdict()
			e.IsFake = &isFake
			e.Confidence = fr.Result.Confidence
			e.Display = detection.FormatConfidence(fr.Result.Confidence)
			if isFake {
				r.Fake++
			} else {
				r.Real++
			}
		}
		r.Entries = append(r.Entries, e)
	}
	return r
}

// HasFailures reports whether any file could not be scanned.
func (r *Report) HasFailures() bool { return r.Failed > 0 }
