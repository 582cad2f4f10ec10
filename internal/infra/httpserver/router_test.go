package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	appai "github.com/bryanwahyu/deepcheck/internal/application/ai"
	appscans "github.com/bryanwahyu/deepcheck/internal/application/scans"
	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
	"github.com/bryanwahyu/deepcheck/internal/domain/journal"
	"github.com/bryanwahyu/deepcheck/internal/infra/db/memory"
)

type detectorFunc func(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error)

func (f detectorFunc) Detect(ctx context.Context, req detection.ScanRequest) (detection.ScanResult, error) {
	return f(ctx, req)
}

func newTestServer(t *testing.T, d detection.Detector, maxBytes int64) *httptest.Server {
	t.Helper()
	repo := memory.NewJournalRepository(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &appscans.Service{Detector: d, Journal: repo, Logger: logger}

	srv := httptest.NewServer(NewRouter(Options{
		Scans:          svc,
		Sessions:       appscans.NewRegistry(nil, time.Minute, detection.ModeXception),
		Explainer:      appai.NewService(nil, repo),
		Logger:         logger,
		MaxImageBytes:  maxBytes,
		AllowedOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func postUpload(t *testing.T, url string, data []byte, mode string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "upload.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	if mode != "" {
		mw.WriteField("model_type", mode)
	}
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func fixed(res detection.ScanResult) detection.Detector {
	return detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
		return res, nil
	})
}

func TestIndexAndModes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, fixed(detection.ScanResult{}), 1<<20)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	page, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(page), "DeepCheck") {
		t.Errorf("GET / = %d", resp.StatusCode)
	}
	// a failed poll backs off and polls again instead of leaving the spinner on
	if !strings.Contains(string(page), "failures++") || strings.Count(string(page), "setTimeout(poll") < 2 {
		t.Error("page should keep polling after a failed session request")
	}

	modes := decode[struct {
		Default string                  `json:"default"`
		Modes   []detection.ModeProfile `json:"modes"`
	}](t, doJSON(t, http.MethodGet, srv.URL+"/v1/modes", nil))
	if modes.Default != "Xception" || len(modes.Modes) != 2 {
		t.Errorf("modes = %+v", modes)
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	var gotMode atomic.Value
	srv := newTestServer(t, detectorFunc(func(_ context.Context, req detection.ScanRequest) (detection.ScanResult, error) {
		gotMode.Store(req.Mode)
		return detection.ScanResult{IsFake: true, Confidence: 0.87}, nil
	}), 1<<20)

	resp := postUpload(t, srv.URL+"/v1/detect", pngImage(t), "MobileNet")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decode[detectResponse](t, resp)
	if out.Result != (detection.ScanResult{IsFake: true, Confidence: 0.87}) {
		t.Errorf("result = %+v", out.Result)
	}
	if out.Presentation.Confidence != "87.0%" || out.Presentation.Label != "AI GENERATED" || out.Presentation.Mode != "Fast" {
		t.Errorf("presentation = %+v", out.Presentation)
	}
	if out.Image.ContentType != "image/png" {
		t.Errorf("image = %+v", out.Image)
	}
	if gotMode.Load() != detection.ModeMobileNet {
		t.Errorf("detector saw mode %v", gotMode.Load())
	}
}

func TestDetectErrors(t *testing.T) {
	t.Parallel()

	failing := detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
		return detection.ScanResult{}, fmt.Errorf("%w: connection refused", detection.ErrTransport)
	})

	t.Run("scan failure is a bad gateway with the generic alert", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, failing, 1<<20)
		resp := postUpload(t, srv.URL+"/v1/detect", pngImage(t), "")
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
		body := decode[map[string]string](t, resp)
		if body["error"] != detection.FailureAlert {
			t.Errorf("error = %q", body["error"])
		}
	})

	t.Run("text is rejected", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, failing, 1<<20)
		resp := postUpload(t, srv.URL+"/v1/detect", []byte("plain text, not a picture"), "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("missing file part", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, failing, 1<<20)
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("model_type", "Xception")
		mw.Close()
		resp, err := http.Post(srv.URL+"/v1/detect", mw.FormDataContentType(), &body)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("oversized image", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, failing, 64)
		resp := postUpload(t, srv.URL+"/v1/detect", bytes.Repeat([]byte{0x89}, 4096), "")
		if resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", resp.StatusCode)
		}
	})
}

func pollSession(t *testing.T, url string) sessionResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s := decode[sessionResponse](t, doJSON(t, http.MethodGet, url, nil))
		if !s.Loading || time.Now().After(deadline) {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionFlow(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, fixed(detection.ScanResult{IsFake: false, Confidence: 0.5}), 1<<20)

	created := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", nil)
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", created.StatusCode)
	}
	s := decode[sessionResponse](t, created)
	if s.View.Phase != "idle" || s.Presentation != nil {
		t.Fatalf("new session = %+v", s)
	}
	base := srv.URL + "/v1/sessions/" + s.ID

	m := decode[sessionResponse](t, doJSON(t, http.MethodPut, base+"/mode", map[string]string{"model_type": "MobileNet"}))
	if m.View.Mode != detection.ModeMobileNet {
		t.Errorf("mode = %q", m.View.Mode)
	}

	resp := postUpload(t, base+"/scans", pngImage(t), "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("scan status = %d", resp.StatusCode)
	}
	started := decode[sessionResponse](t, resp)
	if !started.Loading || started.View.Result != nil || started.View.ScanMode != detection.ModeMobileNet {
		t.Errorf("started view = %+v", started.View)
	}

	done := pollSession(t, base)
	if done.View.Phase != "result_ready" || done.Presentation == nil {
		t.Fatalf("final view = %+v", done.View)
	}
	if done.Presentation.BarWidth != 50 || done.Presentation.Label != "REAL IMAGE" {
		t.Errorf("presentation = %+v", done.Presentation)
	}

	// the record is written after the result is shown
	latest := waitLatest(t, srv.URL, 1)
	if len(latest) != 1 || latest[0].SessionID != s.ID {
		t.Fatalf("latest = %+v", latest)
	}
	rec := decode[journal.Record](t, doJSON(t, http.MethodGet, srv.URL+"/v1/scans/"+string(latest[0].ID), nil))
	if rec.Mode != detection.ModeMobileNet {
		t.Errorf("record = %+v", rec)
	}

	if r := doJSON(t, http.MethodPost, srv.URL+"/v1/scans/"+string(rec.ID)+"/explain", nil); r.StatusCode != http.StatusConflict {
		t.Errorf("explain without explainer = %d, want 409", r.StatusCode)
	}

	sum := decode[struct {
		Days    int             `json:"days"`
		Summary journal.Summary `json:"summary"`
	}](t, doJSON(t, http.MethodGet, srv.URL+"/v1/summary", nil))
	if sum.Days != 7 || sum.Summary.Total != 1 || sum.Summary.Real != 1 {
		t.Errorf("summary = %+v", sum)
	}

	if r := doJSON(t, http.MethodDelete, base, nil); r.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d", r.StatusCode)
	}
	if r := doJSON(t, http.MethodGet, base, nil); r.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", r.StatusCode)
	}
}

func waitLatest(t *testing.T, base string, n int) []journal.Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		latest := decode[[]journal.Record](t, doJSON(t, http.MethodGet, base+"/v1/scans/latest?limit=5", nil))
		if len(latest) >= n || time.Now().After(deadline) {
			return latest
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRejectedScanKeepsMode(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTestServer(t, detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
		calls.Add(1)
		return detection.ScanResult{}, nil
	}), 1<<20)

	s := decode[sessionResponse](t, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", nil))
	base := srv.URL + "/v1/sessions/" + s.ID
	doJSON(t, http.MethodPut, base+"/mode", map[string]string{"model_type": "MobileNet"})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty file", data: nil},
		{name: "not an image", data: []byte("plain text, not pixels")},
	}
	for _, tt := range tests {
		resp := postUpload(t, base+"/scans", tt.data, "Xception")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, resp.StatusCode)
		}
	}

	got := decode[sessionResponse](t, doJSON(t, http.MethodGet, base, nil))
	if got.View.Mode != detection.ModeMobileNet {
		t.Errorf("mode = %q after rejected uploads, want MobileNet", got.View.Mode)
	}
	if got.View.Phase != "idle" {
		t.Errorf("phase = %q, want idle", got.View.Phase)
	}
	if calls.Load() != 0 {
		t.Errorf("detector called %d times for rejected uploads", calls.Load())
	}
}

func TestSessionFailureAlertsOnce(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, detectorFunc(func(context.Context, detection.ScanRequest) (detection.ScanResult, error) {
		return detection.ScanResult{}, detection.ErrMalformedResponse
	}), 1<<20)

	s := decode[sessionResponse](t, doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", nil))
	base := srv.URL + "/v1/sessions/" + s.ID
	postUpload(t, base+"/scans", pngImage(t), "Xception")

	var alerts []string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		v := decode[sessionResponse](t, doJSON(t, http.MethodGet, base, nil))
		alerts = append(alerts, v.Alerts...)
		if !v.Loading {
			if v.View.Phase != "idle" || v.Presentation != nil {
				t.Errorf("view after failure = %+v", v.View)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	again := decode[sessionResponse](t, doJSON(t, http.MethodGet, base, nil))
	alerts = append(alerts, again.Alerts...)

	if len(alerts) != 1 || alerts[0] != detection.FailureAlert {
		t.Errorf("alerts = %v, want exactly one", alerts)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, fixed(detection.ScanResult{}), 1<<20)

	for _, path := range []string{
		"/v1/sessions/not-a-uuid",
		"/v1/sessions/3f2504e0-4f89-41d3-9a0c-0305e82c3301",
		"/v1/scans/3f2504e0-4f89-41d3-9a0c-0305e82c3301",
	} {
		if r := doJSON(t, http.MethodGet, srv.URL+path, nil); r.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, r.StatusCode)
		}
	}
}
