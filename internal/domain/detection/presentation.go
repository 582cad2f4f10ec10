package detection

import "strconv"

// Presentation is the display form of a result.
type Presentation struct {
	Label      string  `json:"label"`
	Confidence string  `json:"confidence"`
	BarWidth   float64 `json:"bar_width"`
	Mode       string  `json:"mode"`
	Time       string  `json:"time"`
}

// Present formats r for display. Mode and time labels follow the
// currently selected mode, not the one the scan ran with.
func Present(r ScanResult, selected ScanMode) Presentation {
	p := selected.Profile()
	return Presentation{
		Label:      r.Verdict(),
		Confidence: FormatConfidence(r.Confidence),
		BarWidth:   BarWidth(r.Confidence),
		Mode:       p.Label,
		Time:       p.Time,
	}
}

// FormatConfidence renders c as a percentage with one decimal, e.g. "87.0%".
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c*100, 'f', 1, 64) + "%"
}

// BarWidth is the confidence bar fill in percent of full scale.
func BarWidth(c float64) float64 {
	return c * 100
}
