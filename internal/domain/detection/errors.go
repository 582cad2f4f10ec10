package detection

import (
	"errors"
	"fmt"
)

// ErrScanFailed is the coarse failure every detector error wraps.
var ErrScanFailed = errors.New("scan failed")

var (
	// ErrTransport covers network errors, timeouts and non-2xx statuses.
	ErrTransport = fmt.Errorf("%w: transport failure", ErrScanFailed)
	// ErrMalformedResponse means a response arrived but its shape is wrong.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrScanFailed)
)

var (
	ErrEmptyImage = errors.New("image is empty")
	ErrNotImage   = errors.New("payload is not an image")
)

// FailureAlert is the single user-visible message for any failed scan.
const FailureAlert = "API Error: Ensure Backend is running"
