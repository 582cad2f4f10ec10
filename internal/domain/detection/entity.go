package detection

// ScanMode is the model variant forwarded to the remote classifier.
// Values outside the known set are passed through as-is.
type ScanMode string

const (
	ModeXception  ScanMode = "Xception"
	ModeMobileNet ScanMode = "MobileNet"
)

// DefaultMode is what the mode selector starts on.
const DefaultMode = ModeXception

// ScanRequest is one image submission. Build it with NewScanRequest.
type ScanRequest struct {
	Image       []byte
	Filename    string
	ContentType string
	Mode        ScanMode
	Info        ImageInfo
}

// ScanResult value object returned by the classifier
type ScanResult struct {
	IsFake     bool    `json:"is_fake"`
	Confidence float64 `json:"confidence"`
}

// Verdict label shown to the user
func (r ScanResult) Verdict() string {
	if r.IsFake {
		return "AI GENERATED"
	}
	return "REAL IMAGE"
}
