package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/mushroom-id/internal/application/analysis"
	domai "github.com/bryanwahyu/mushroom-id/internal/domain/ai"
	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
	"github.com/bryanwahyu/mushroom-id/internal/infra/imageenc"
	"github.com/bryanwahyu/mushroom-id/internal/logger"
	"github.com/bryanwahyu/mushroom-id/internal/middleware"
)

// multipart framing on top of the image itself
const multipartOverhead = 1 << 20

// Analyzer is the analysis use case the router drives.
type Analyzer interface {
	Analyze(ctx context.Context, src io.Reader, mediaType string) (analysis.Record, error)
	Current() (analysis.Record, bool)
	Reset()
	InFlight() bool
}

// Options configures the HTTP surface.
type Options struct {
	MaxUploadBytes int64
	AllowedTypes   []string
	AllowedOrigins []string
	APIKeys        map[string]string
	RateLimiter    *middleware.RateLimiter
	HealthCheckers map[string]middleware.HealthChecker
}

type Router struct {
	svc  Analyzer
	opts Options
}

func NewRouter(svc Analyzer, opts Options) http.Handler {
	r := &Router{svc: svc, opts: opts}
	mux := chi.NewRouter()

	mux.Use(
		middleware.RequestID,
		middleware.LoggingMiddleware,
		middleware.MetricsMiddleware,
		middleware.CORS(opts.AllowedOrigins),
		middleware.APIKeyAuth(opts.APIKeys),
	)
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler(opts.HealthCheckers))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/analyses", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleAnalyze))
		rt.Get("/current", r.wrap(r.handleCurrent))
		rt.Delete("/current", r.wrap(r.handleReset))
	})

	return mux
}

// requestError is a problem with the upload itself, reported verbatim.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		body := errorBody{RequestID: middleware.GetRequestID(req.Context())}
		status := http.StatusInternalServerError

		var reqErr *requestError
		var failure *mushroom.Failure
		switch {
		case errors.As(err, &reqErr):
			status, body.Error = reqErr.status, reqErr.msg
		case errors.Is(err, analysis.ErrAnalysisInProgress):
			status, body.Error = http.StatusConflict, err.Error()
		case errors.As(err, &failure):
			// logged with stage and duration where it happened
			status = failureStatus(err)
			body.Error, body.Kind = mushroom.UserMessage, string(failure.Kind)
		default:
			body.Error = "internal server error"
			logger.WithError(err).WithField("request_id", body.RequestID).Error("request failed")
		}

		writeJSON(w, status, body)
	}
}

func failureStatus(err error) int {
	switch {
	case errors.Is(err, mushroom.ErrRead):
		return http.StatusBadRequest
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		// transport, malformed and validation failures are all upstream problems
		return http.StatusBadGateway
	}
}

type analysisResponse struct {
	ID         string            `json:"id"`
	Analysis   mushroom.Analysis `json:"analysis"`
	AnalyzedAt time.Time         `json:"analyzed_at"`
	DurationMS int64             `json:"duration_ms"`
	Disclaimer string            `json:"disclaimer"`
}

func newAnalysisResponse(rec analysis.Record) analysisResponse {
	return analysisResponse{
		ID:         rec.ID,
		Analysis:   rec.Analysis,
		AnalyzedAt: rec.AnalyzedAt,
		DurationMS: rec.Duration.Milliseconds(),
		Disclaimer: mushroom.Disclaimer,
	}
}

// POST /v1/analyses
// Body: multipart/form-data with the photo in field "image".
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	// refuse before buffering the upload; Analyze still holds the real guard
	if r.svc.InFlight() {
		middleware.RecordRejectedAnalysis()
		return analysis.ErrAnalysisInProgress
	}

	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes+multipartOverhead)

	data, mediaType, err := r.readUpload(req)
	if err != nil {
		return err
	}

	rec, err := r.svc.Analyze(req.Context(), bytes.NewReader(data), mediaType)
	switch {
	case errors.Is(err, analysis.ErrAnalysisInProgress):
		middleware.RecordRejectedAnalysis()
		return err
	case err != nil:
		middleware.RecordAnalysis(err)
		return err
	}
	middleware.RecordAnalysis(nil)

	writeJSON(w, http.StatusOK, newAnalysisResponse(rec))
	return nil
}

// readUpload returns the image bytes and their media type after checking
// size, declared type and that the content decodes as that image format.
func (r *Router) readUpload(req *http.Request) ([]byte, string, error) {
	if err := req.ParseMultipartForm(r.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", &requestError{status: http.StatusRequestEntityTooLarge, msg: "image too large"}
		}
		return nil, "", badRequest("expected multipart/form-data with an image field")
	}
	defer req.MultipartForm.RemoveAll()

	file, header, err := req.FormFile("image")
	if err != nil {
		return nil, "", badRequest("image field is required")
	}
	defer file.Close()

	if err := middleware.ValidateUploadSize(header.Size, r.opts.MaxUploadBytes); err != nil {
		return nil, "", &requestError{status: http.StatusRequestEntityTooLarge, msg: err.Error()}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetRequestID(req.Context()),
			"kind":       mushroom.KindRead,
		}).Warn("upload read failed")
		return nil, "", mushroom.ReadFailure("httpserver.readUpload", err)
	}

	sniffed, ok := imageenc.DetectMediaType(data)
	if !ok {
		return nil, "", badRequest("file content is not a supported image")
	}
	mediaType := middleware.NormalizeMediaType(header.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = sniffed
	}
	if err := middleware.ValidateMediaType(mediaType, r.opts.AllowedTypes); err != nil {
		return nil, "", badRequest("%s", err.Error())
	}
	if mediaType != sniffed {
		return nil, "", badRequest("declared type %s does not match content (%s)", mediaType, sniffed)
	}

	cfg, format, err := imageenc.DecodeConfig(data)
	if err != nil {
		return nil, "", badRequest("image could not be decoded")
	}

	logger.WithFields(logrus.Fields{
		"request_id": middleware.GetRequestID(req.Context()),
		"filename":   middleware.SanitizeFilename(header.Filename),
		"media_type": mediaType,
		"format":     format,
		"width":      cfg.Width,
		"height":     cfg.Height,
		"bytes":      len(data),
	}).Debug("upload accepted")

	return data, mediaType, nil
}

// GET /v1/analyses/current
func (r *Router) handleCurrent(w http.ResponseWriter, req *http.Request) error {
	rec, ok := r.svc.Current()
	if !ok {
		return &requestError{status: http.StatusNotFound, msg: "no current analysis"}
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(rec))
	return nil
}

// DELETE /v1/analyses/current
func (r *Router) handleReset(w http.ResponseWriter, req *http.Request) error {
	r.svc.Reset()
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
