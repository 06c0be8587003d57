package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64

	AnalysesTotal     atomic.Uint64
	AnalysesSucceeded atomic.Uint64
	AnalysesRejected  atomic.Uint64
	FailedRead        atomic.Uint64
	FailedTransport   atomic.Uint64
	FailedMalformed   atomic.Uint64
	FailedValidation  atomic.Uint64

	StartTime time.Time
}

var globalMetrics = &Metrics{StartTime: time.Now()}

// RecordAnalysis counts a finished analysis; err nil means success.
func RecordAnalysis(err error) {
	globalMetrics.AnalysesTotal.Add(1)
	if err == nil {
		globalMetrics.AnalysesSucceeded.Add(1)
		return
	}
	kind, _ := mushroom.KindOf(err)
	switch kind {
	case mushroom.KindRead:
		globalMetrics.FailedRead.Add(1)
	case mushroom.KindTransport:
		globalMetrics.FailedTransport.Add(1)
	case mushroom.KindMalformed:
		globalMetrics.FailedMalformed.Add(1)
	case mushroom.KindValidation:
		globalMetrics.FailedValidation.Add(1)
	}
}

// RecordRejectedAnalysis counts a trigger refused because another analysis was running.
func RecordRejectedAnalysis() {
	globalMetrics.AnalysesRejected.Add(1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       globalMetrics.RequestsTotal.Load(),
		"requests_in_progress": globalMetrics.RequestsInProgress.Load(),
		"requests_success":     globalMetrics.RequestsSuccess.Load(),
		"requests_failed":      globalMetrics.RequestsFailed.Load(),
		"analyses": map[string]interface{}{
			"total":     globalMetrics.AnalysesTotal.Load(),
			"succeeded": globalMetrics.AnalysesSucceeded.Load(),
			"rejected":  globalMetrics.AnalysesRejected.Load(),
			"failed": map[string]uint64{
				string(mushroom.KindRead):       globalMetrics.FailedRead.Load(),
				string(mushroom.KindTransport):  globalMetrics.FailedTransport.Load(),
				string(mushroom.KindMalformed):  globalMetrics.FailedMalformed.Load(),
				string(mushroom.KindValidation): globalMetrics.FailedValidation.Load(),
			},
		},
		"uptime_seconds": time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		globalMetrics.RequestsTotal.Add(1)
		globalMetrics.RequestsInProgress.Add(1)
		defer globalMetrics.RequestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			globalMetrics.RequestsSuccess.Add(1)
		} else {
			globalMetrics.RequestsFailed.Add(1)
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
