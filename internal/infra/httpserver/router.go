package httpserver

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/deepcheck/internal/application/ai"
	appscans "github.com/bryanwahyu/deepcheck/internal/application/scans"
	domai "github.com/bryanwahyu/deepcheck/internal/domain/ai"
	"github.com/bryanwahyu/deepcheck/internal/domain/detection"
	"github.com/bryanwahyu/deepcheck/internal/domain/journal"
	"github.com/bryanwahyu/deepcheck/internal/domain/session"
	"github.com/bryanwahyu/deepcheck/internal/middleware"
)

//go:embed web
var webFS embed.FS

// ErrInvalidRequest marks client mistakes that are not about the image.
var ErrInvalidRequest = errors.New("invalid request")

// multipartOverhead is allowed on top of the image size for form framing
// and the model_type field.
const multipartOverhead = 1 << 20

// Options wires the router.
type Options struct {
	Scans          *appscans.Service
	Sessions       *appscans.Registry
	Explainer      *appai.Service
	Metrics        *middleware.Metrics
	Dependencies   []middleware.Dependency
	Logger         *slog.Logger
	MaxImageBytes  int64
	DefaultMode    detection.ScanMode
	AllowedOrigins []string
}

type Router struct {
	scans     *appscans.Service
	sessions  *appscans.Registry
	explainer *appai.Service
	logger    *slog.Logger
	maxImage  int64
	mode      detection.ScanMode
}

func NewRouter(opts Options) http.Handler {
	r := &Router{
		scans:     opts.Scans,
		sessions:  opts.Sessions,
		explainer: opts.Explainer,
		logger:    opts.Logger,
		maxImage:  opts.MaxImageBytes,
		mode:      opts.DefaultMode,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.maxImage <= 0 {
		r.maxImage = 20 << 20
	}
	if r.mode == "" {
		r.mode = detection.DefaultMode
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Logging(r.logger))
	mux.Use(metrics.Middleware)
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Get("/", r.handleIndex)
	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(opts.Dependencies))
	mux.Get("/metrics", metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/modes", r.wrap(r.handleModes))
		rt.Post("/detect", r.wrap(r.handleDetect))

		rt.Post("/sessions", r.wrap(r.handleCreateSession))
		rt.Get("/sessions/{id}", r.wrap(r.handleGetSession))
		rt.Delete("/sessions/{id}", r.wrap(r.handleDeleteSession))
		rt.Put("/sessions/{id}/mode", r.wrap(r.handleSelectMode))
		rt.Post("/sessions/{id}/scans", r.wrap(r.handleStartScan))

		rt.Get("/scans/latest", r.wrap(r.handleLatest))
		rt.Get("/scans/{id}", r.wrap(r.handleGetRecord))
		rt.Post("/scans/{id}/explain", r.wrap(r.handleExplain))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			if status >= 500 {
				r.logger.Error("request failed", "path", req.URL.Path, "error", err)
			}
			msg := err.Error()
			if errors.Is(err, detection.ErrScanFailed) {
				// the UI shows one generic alert for every scan failure
				msg = detection.FailureAlert
			}
			writeJSON(w, status, map[string]string{"error": msg})
		}
	}
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, journal.ErrRecordNotFound),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, detection.ErrEmptyImage),
		errors.Is(err, detection.ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, detection.ErrScanFailed):
		return http.StatusBadGateway
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domai.ErrExplainerDisabled),
		errors.Is(err, domai.ErrNoArtifact),
		errors.Is(err, domai.ErrNotExplainable):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// GET /
func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	http.ServeFileFS(w, req, webFS, "web/index.html")
}

// GET /v1/modes
func (r *Router) handleModes(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"default": r.mode,
		"modes":   detection.Modes(),
	})
}

type upload struct {
	data     []byte
	filename string
	declared string
	mode     string
	hasMode  bool
}

// readUpload parses a multipart body with a "file" part and an optional
// "model_type" field.
func (r *Router) readUpload(w http.ResponseWriter, req *http.Request) (upload, error) {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxImage+multipartOverhead)
	if err := req.ParseMultipartForm(r.maxImage); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return upload{}, err
		}
		return upload{}, fmt.Errorf("%w: failed to parse form: %v", ErrInvalidRequest, err)
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		return upload{}, fmt.Errorf("%w: no file uploaded", ErrInvalidRequest)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, r.maxImage+1))
	if err != nil {
		return upload{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > r.maxImage {
		return upload{}, &http.MaxBytesError{Limit: r.maxImage}
	}

	u := upload{
		data:     data,
		filename: middleware.SanitizeFilename(header.Filename),
		declared: header.Header.Get("Content-Type"),
	}
	if vals, ok := req.MultipartForm.Value["model_type"]; ok && len(vals) > 0 {
		u.mode = vals[0]
		u.hasMode = true
	}
	return u, nil
}

type detectResponse struct {
	Result       detection.ScanResult   `json:"result"`
	Presentation detection.Presentation `json:"presentation"`
	Image        detection.ImageInfo    `json:"image"`
}

// POST /v1/detect
// Body: multipart file + model_type. Runs the scan synchronously.
func (r *Router) handleDetect(w http.ResponseWriter, req *http.Request) error {
	up, err := r.readUpload(w, req)
	if err != nil {
		return err
	}
	mode := detection.ParseMode(up.mode, r.mode)
	scanReq, err := detection.NewScanRequest(up.data, up.filename, up.declared, mode)
	if err != nil {
		return err
	}

	res, err := r.scans.Detect(req.Context(), scanReq)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, detectResponse{
		Result:       res,
		Presentation: detection.Present(res, mode),
		Image:        scanReq.Info,
	})
}

type sessionResponse struct {
	ID           string                  `json:"id"`
	View         session.View            `json:"view"`
	Loading      bool                    `json:"loading"`
	Presentation *detection.Presentation `json:"presentation"`
	Alerts       []string                `json:"alerts,omitempty"`
}

func newSessionResponse(id string, v session.View, alerts []string) sessionResponse {
	return sessionResponse{
		ID:           id,
		View:         v,
		Loading:      v.Loading(),
		Presentation: v.Presentation(),
		Alerts:       alerts,
	}
}

func (r *Router) session(req *http.Request) (*session.Session, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrSessionNotFound, err)
	}
	return r.sessions.Get(id)
}

// POST /v1/sessions
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) error {
	s := r.sessions.Create()
	return writeJSON(w, http.StatusCreated, newSessionResponse(s.ID, s.View(), nil))
}

// GET /v1/sessions/{id}
// Pending alerts are returned once and then forgotten.
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	v, alerts := s.Snapshot(r.scans.Now())
	return writeJSON(w, http.StatusOK, newSessionResponse(s.ID, v, alerts))
}

// DELETE /v1/sessions/{id}
func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := r.sessions.Delete(id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// PUT /v1/sessions/{id}/mode
// Body: {"model_type": "MobileNet"}
func (r *Router) handleSelectMode(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	var body struct {
		ModelType string `json:"model_type"`
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, 4096)).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if body.ModelType == "" {
		return fmt.Errorf("%w: model_type is required", ErrInvalidRequest)
	}
	v := s.SelectMode(detection.ParseMode(body.ModelType, r.mode))
	return writeJSON(w, http.StatusOK, newSessionResponse(s.ID, v, nil))
}

// POST /v1/sessions/{id}/scans
// Body: multipart file + optional model_type (defaults to the session's
// selected mode). Answers 202 right away; poll the session for the outcome.
func (r *Router) handleStartScan(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	up, err := r.readUpload(w, req)
	if err != nil {
		return err
	}

	mode := s.View().Mode
	if up.hasMode {
		mode = detection.ParseMode(up.mode, mode)
	}
	scanReq, err := detection.NewScanRequest(up.data, up.filename, up.declared, mode)
	if err != nil {
		return err
	}
	// a rejected upload leaves the selected mode alone
	if up.hasMode {
		s.SelectMode(mode)
	}

	ticket := r.scans.Start(s, scanReq)
	return writeJSON(w, http.StatusAccepted, newSessionResponse(s.ID, ticket.View, nil))
}

// GET /v1/scans/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scans.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*journal.Record{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/scans/{id}
func (r *Router) handleGetRecord(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%w: %v", journal.ErrRecordNotFound, err)
	}
	rec, err := r.scans.Get(req.Context(), journal.RecordID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// POST /v1/scans/{id}/explain
// The server looks up the record's archived image and asks the explainer about it.
func (r *Router) handleExplain(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%w: %v", journal.ErrRecordNotFound, err)
	}
	exp, err := r.explainer.Explain(req.Context(), journal.RecordID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, exp)
}

// GET /v1/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	days = middleware.ValidateDays(days)

	summary, err := r.scans.Summary(req.Context(), days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"summary": summary,
	})
}
