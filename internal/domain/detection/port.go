package detection

import "context"

// Detector port (interface untuk remote classifier)
type Detector interface {
	Detect(ctx context.Context, req ScanRequest) (ScanResult, error)
}
