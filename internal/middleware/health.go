package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bryanwahyu/mushroom-id/internal/domain/ai"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// DefaultPingTTL is how long a model check result is reused.
const DefaultPingTTL = 30 * time.Second

// ModelHealthChecker checks that the configured model answers metadata
// requests. Results are reused for TTL so public probes cannot drive upstream
// traffic on the service credential.
type ModelHealthChecker struct {
	Model ai.Pinger
	TTL   time.Duration

	now func() time.Time

	mu        sync.Mutex
	checkedAt time.Time
	lastErr   error
}

func NewModelHealthChecker(model ai.Pinger, ttl time.Duration) *ModelHealthChecker {
	return &ModelHealthChecker{Model: model, TTL: ttl}
}

func (m *ModelHealthChecker) Check(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ttl := m.TTL
	if ttl <= 0 {
		ttl = DefaultPingTTL
	}
	if !m.checkedAt.IsZero() && now.Sub(m.checkedAt) < ttl {
		return m.lastErr
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := m.Model.Ping(pingCtx)
	if ctx.Err() != nil {
		// caller went away; the result says nothing about the model
		return err
	}
	m.checkedAt, m.lastErr = now, err
	return err
}

func (m *ModelHealthChecker) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// HealthStatus represents the health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// CheckStatus represents individual check status
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func runChecks(ctx context.Context, checkers map[string]HealthChecker) (map[string]CheckStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok := true
	checks := make(map[string]CheckStatus, len(checkers))
	for name, checker := range checkers {
		if err := checker.Check(ctx); err != nil {
			ok = false
			checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		checks[name] = CheckStatus{Status: "healthy"}
	}
	return checks, ok
}

// HealthHandler runs every checker and reports 503 if any fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks, ok := runChecks(r.Context(), checkers)
		health := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
			Checks:    checks,
		}

		statusCode := http.StatusOK
		if !ok {
			health.Status = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(health)
	}
}

// ReadinessHandler reports ready only while every dependency check passes.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks, ok := runChecks(r.Context(), checkers)
		status, code := "ready", http.StatusOK
		if !ok {
			status, code = "not ready", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
			"checks":    checks,
		})
	}
}

// LivenessHandler creates a liveness check handler (simplest check)
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
