package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/mushroom-id/internal/application/analysis"
	domai "github.com/bryanwahyu/mushroom-id/internal/domain/ai"
	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
	"github.com/bryanwahyu/mushroom-id/internal/logger"
	"github.com/bryanwahyu/mushroom-id/internal/middleware"
)

type fakeAnalyzer struct {
	rec       analysis.Record
	err       error
	current   *analysis.Record
	resets    int
	gotType   string
	gotBytes  []byte
	callCount int
	busy      bool
}

func (f *fakeAnalyzer) Analyze(_ context.Context, src io.Reader, mediaType string) (analysis.Record, error) {
	f.callCount++
	f.gotType = mediaType
	f.gotBytes, _ = io.ReadAll(src)
	if f.err != nil {
		return analysis.Record{}, f.err
	}
	f.current = &f.rec
	return f.rec, nil
}

func (f *fakeAnalyzer) Current() (analysis.Record, bool) {
	if f.current == nil {
		return analysis.Record{}, false
	}
	return *f.current, true
}

func (f *fakeAnalyzer) InFlight() bool { return f.busy }

func (f *fakeAnalyzer) Reset() {
	f.resets++
	f.current = nil
}

var flyAgaric = analysis.Record{
	ID: "3f0c1b8e-8e4a-4a8e-9a57-1f2d3c4b5a69",
	Analysis: mushroom.Analysis{
		Species:     "Amanita muscaria (Fly Agaric)",
		Edibility:   mushroom.EdibilityPoisonous,
		Description: "Warning: never eat based on AI ID. Distinctive red cap with white spots.",
		Confidence:  0.87,
	},
	AnalyzedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	Duration:   1200 * time.Millisecond,
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="cap.png"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestRouter(svc Analyzer) http.Handler {
	return NewRouter(svc, Options{
		MaxUploadBytes: 64 << 10,
		AllowedTypes:   []string{"image/png", "image/jpeg", "image/webp"},
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyze_Success(t *testing.T) {
	svc := &fakeAnalyzer{rec: flyAgaric}
	img := testPNG(t)

	rec := serve(newTestRouter(svc), uploadRequest(t, "image", "image/png", img))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		ID         string `json:"id"`
		Analysis   map[string]any
		DurationMS int64  `json:"duration_ms"`
		Disclaimer string `json:"disclaimer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, flyAgaric.ID, got.ID)
	assert.Equal(t, map[string]any{
		"species":     "Amanita muscaria (Fly Agaric)",
		"edibility":   "Poisonous",
		"description": "Warning: never eat based on AI ID. Distinctive red cap with white spots.",
		"confidence":  0.87,
	}, got.Analysis)
	assert.EqualValues(t, 1200, got.DurationMS)
	assert.Equal(t, mushroom.Disclaimer, got.Disclaimer)

	assert.Equal(t, "image/png", svc.gotType)
	assert.Equal(t, img, svc.gotBytes)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAnalyze_SniffsMissingContentType(t *testing.T) {
	svc := &fakeAnalyzer{rec: flyAgaric}
	rec := serve(newTestRouter(svc), uploadRequest(t, "image", "application/octet-stream", testPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", svc.gotType)
}

func TestAnalyze_RejectsBadUploads(t *testing.T) {
	big := append(testPNG(t), make([]byte, 70<<10)...)

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{"not multipart", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/v1/analyses", bytes.NewReader([]byte("{}")))
		}, http.StatusBadRequest},
		{"wrong field", func(t *testing.T) *http.Request {
			return uploadRequest(t, "photo", "image/png", testPNG(t))
		}, http.StatusBadRequest},
		{"not an image", func(t *testing.T) *http.Request {
			return uploadRequest(t, "image", "image/png", []byte("hello world"))
		}, http.StatusBadRequest},
		{"type mismatch", func(t *testing.T) *http.Request {
			return uploadRequest(t, "image", "image/jpeg", testPNG(t))
		}, http.StatusBadRequest},
		{"disallowed type", func(t *testing.T) *http.Request {
			return uploadRequest(t, "image", "image/gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"))
		}, http.StatusBadRequest},
		{"corrupt png", func(t *testing.T) *http.Request {
			return uploadRequest(t, "image", "image/png", testPNG(t)[:12])
		}, http.StatusBadRequest},
		{"too large", func(t *testing.T) *http.Request {
			return uploadRequest(t, "image", "image/png", big)
		}, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAnalyzer{rec: flyAgaric}
			rec := serve(newTestRouter(svc), tt.req(t))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Zero(t, svc.callCount, "no analysis for a rejected upload")
		})
	}
}

func TestAnalyze_FailureResponses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"transport", mushroom.TransportFailure("test", errors.New("connection refused")), http.StatusBadGateway, "transport"},
		{"quota", mushroom.TransportFailure("test", domai.ErrQuotaExceeded), http.StatusTooManyRequests, "transport"},
		{"malformed", mushroom.MalformedFailure("test", "prose", nil), http.StatusBadGateway, "malformed_response"},
		{"validation", mushroom.ValidationFailure("test", "missing species"), http.StatusBadGateway, "validation"},
		{"read", mushroom.ReadFailure("test", io.ErrUnexpectedEOF), http.StatusBadRequest, "read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAnalyzer{err: tt.err}
			rec := serve(newTestRouter(svc), uploadRequest(t, "image", "image/png", testPNG(t)))

			assert.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, mushroom.UserMessage, body.Error, "diagnostics stay in logs")
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, rec.Body.String(), "missing species")
		})
	}
}

func TestAnalyze_InProgress(t *testing.T) {
	svc := &fakeAnalyzer{err: analysis.ErrAnalysisInProgress}
	rec := serve(newTestRouter(svc), uploadRequest(t, "image", "image/png", testPNG(t)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAnalyze_BusyRejectedBeforeUpload(t *testing.T) {
	svc := &fakeAnalyzer{rec: flyAgaric, busy: true}
	req := uploadRequest(t, "image", "image/png", testPNG(t))

	rec := serve(newTestRouter(svc), req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, svc.callCount)
	n, _ := io.Copy(io.Discard, req.Body)
	assert.Positive(t, n, "upload must be left unread")
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })
	return &buf
}

func TestAnalyze_FailureNotLoggedAgain(t *testing.T) {
	logs := captureLogs(t)

	svc := &fakeAnalyzer{err: mushroom.TransportFailure("test", errors.New("connection refused"))}
	rec := serve(newTestRouter(svc), uploadRequest(t, "image", "image/png", testPNG(t)))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, logs.String(), "connection refused")

	svc = &fakeAnalyzer{err: errors.New("disk on fire")}
	rec = serve(newTestRouter(svc), uploadRequest(t, "image", "image/png", testPNG(t)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "disk on fire")
}

type countingPinger struct{ calls atomic.Int32 }

func (p *countingPinger) Ping(context.Context) error {
	p.calls.Add(1)
	return nil
}

func TestHealth_ModelPingedOncePerTTL(t *testing.T) {
	pinger := &countingPinger{}
	h := NewRouter(&fakeAnalyzer{}, Options{
		MaxUploadBytes: 1 << 20,
		AllowedTypes:   []string{"image/png"},
		APIKeys:        map[string]string{"web": "secret"},
		RateLimiter:    middleware.NewRateLimiter(1, 1),
		HealthCheckers: map[string]middleware.HealthChecker{
			"model": middleware.NewModelHealthChecker(pinger, time.Minute),
		},
	})

	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	}
	require.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)
	assert.EqualValues(t, 1, pinger.calls.Load())
}

func TestCurrentAndReset(t *testing.T) {
	svc := &fakeAnalyzer{rec: flyAgaric}
	h := newTestRouter(svc)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/analyses/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, uploadRequest(t, "image", "image/png", testPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/analyses/current", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fly Agaric")

	rec = serve(h, httptest.NewRequest(http.MethodDelete, "/v1/analyses/current", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, svc.resets)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/analyses/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProtectedRoutesRequireKey(t *testing.T) {
	h := NewRouter(&fakeAnalyzer{}, Options{
		MaxUploadBytes: 1 << 20,
		AllowedTypes:   []string{"image/png"},
		APIKeys:        map[string]string{"web": "secret"},
	})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/analyses/current", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/current", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusNotFound, serve(h, req).Code)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/live", nil)).Code)
}
