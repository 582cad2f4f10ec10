package session

import "github.com/bryanwahyu/deepcheck/internal/domain/detection"

// Phase of a session's scan lifecycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseScanning    Phase = "scanning"
	PhaseResultReady Phase = "result_ready"
)

// View is the single state value the rendering layer reads. It is only
// ever replaced through the transition methods below, so a loading view
// never carries a result.
type View struct {
	Phase    Phase                 `json:"phase"`
	Seq      uint64                `json:"seq"`
	Mode     detection.ScanMode    `json:"mode"`
	ScanMode detection.ScanMode    `json:"scan_mode,omitempty"`
	Preview  *detection.ImageInfo  `json:"preview,omitempty"`
	Result   *detection.ScanResult `json:"result,omitempty"`
}

// Idle is the starting view with the selector on mode.
func Idle(mode detection.ScanMode) View {
	return View{Phase: PhaseIdle, Mode: mode}
}

// Loading reports whether a scan is outstanding.
func (v View) Loading() bool { return v.Phase == PhaseScanning }

// WithMode changes the selected mode without touching the scan.
func (v View) WithMode(mode detection.ScanMode) View {
	v.Mode = mode
	return v
}

// Select starts scan seq for a newly chosen image. Any previous result
// is dropped.
func (v View) Select(seq uint64, preview detection.ImageInfo, mode detection.ScanMode) View {
	p := preview
	return View{
		Phase:    PhaseScanning,
		Seq:      seq,
		Mode:     v.Mode,
		ScanMode: mode,
		Preview:  &p,
	}
}

// Succeed moves scan seq to result_ready. It refuses when seq is not
// the scan currently outstanding.
func (v View) Succeed(seq uint64, r detection.ScanResult) (View, bool) {
	if v.Phase != PhaseScanning || v.Seq != seq {
		return v, false
	}
	v.Phase = PhaseResultReady
	v.Result = &r
	return v, true
}

// Fail returns scan seq to idle. The preview stays, the result stays empty.
func (v View) Fail(seq uint64) (View, bool) {
	if v.Phase != PhaseScanning || v.Seq != seq {
		return v, false
	}
	v.Phase = PhaseIdle
	v.Result = nil
	return v, true
}

// Presentation returns display strings for the current result, if any.
func (v View) Presentation() *detection.Presentation {
	if v.Result == nil {
		return nil
	}
	p := detection.Present(*v.Result, v.Mode)
	return &p
}
