package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
)

// maxResponseBytes caps how much of a prediction body is read.
const maxResponseBytes = 1 << 20

const userAgent = "deepcheck/1.0"

// Client posts images to the hosted prediction endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a client for endpoint. timeout 0 means no client-side
// limit beyond what ctx imposes.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the configured prediction URL.
func (c *Client) Endpoint() string { return c.endpoint }

type predictResponse struct {
	IsFake     *bool    `json:"is_fake"`
	Confidence *float64 `json:"confidence"`
	ModelUsed  string   `json:"model_used"`
	Error      string   `json:"error"`
}

// Detect implements detection.Detector with one POST and no retry.
func (c *Client) Detect(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return detection.ScanResult{}, fmt.Errorf("%w: build form: %w", detection.ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return detection.ScanResult{}, fmt.Errorf("%w: create request: %w", detection.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return detection.ScanResult{}, fmt.Errorf("%w: send request: %w", detection.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return detection.ScanResult{}, fmt.Errorf("%w: predict returned status %d", detection.ErrTransport, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return detection.ScanResult{}, fmt.Errorf("%w: read body: %w", detection.ErrTransport, err)
	}
	return decodeResult(raw)
}

// decodeResult accepts only {is_fake: bool, confidence: number in [0,1]}.
func decodeResult(raw []byte) (detection.ScanResult, error) {
	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return detection.ScanResult{}, fmt.Errorf("%w: %w", detection.ErrMalformedResponse, err)
	}
	if pr.Error != "" {
		return detection.ScanResult{}, fmt.Errorf("%w: service error: %s", detection.ErrMalformedResponse, pr.Error)
	}
	if pr.IsFake == nil || pr.Confidence == nil {
		return detection.ScanResult{}, fmt.Errorf("%w: missing is_fake or confidence", detection.ErrMalformedResponse)
	}
	c := *pr.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return detection.ScanResult{}, fmt.Errorf("%w: confidence %v outside [0,1]", detection.ErrMalformedResponse, c)
	}
	return detection.ScanResult{IsFake: *pr.IsFake, Confidence: c}, nil
}

func encodeForm(req detection.ScanRequest) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": req.Filename,
	}))
	ct := req.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model_type", string(req.Mode)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// Check reports whether the prediction host answers at all. Any status
// below 500 counts as reachable.
func (c *Client) Check(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return err
	}
	root := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("detector unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// String is used in logs.
func (c *Client) String() string {
	return "remote(" + strings.TrimSuffix(c.endpoint, "/") + ")"
}
