package analysis

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/mushroom-id/internal/application"
	"github.com/bryanwahyu/mushroom-id/internal/domain/ai"
	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
	"github.com/bryanwahyu/mushroom-id/internal/logger"
)

// ErrAnalysisInProgress is returned when an analysis is triggered while another is outstanding.
var ErrAnalysisInProgress = errors.New("an analysis is already in progress")

// Encoder turns an uploaded image into a transport payload.
type Encoder interface {
	Encode(ctx context.Context, src io.Reader, mediaType string) (mushroom.ImagePayload, error)
}

// Stage is a step of a single analysis.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageEncoding   Stage = "encoding"
	StageRequesting Stage = "requesting"
	StageValidating Stage = "validating"
	StageSucceeded  Stage = "succeeded"
	StageFailed     Stage = "failed"
)

// Record is a successful analysis together with its bookkeeping.
type Record struct {
	ID         string            `json:"id"`
	Analysis   mushroom.Analysis `json:"analysis"`
	AnalyzedAt time.Time         `json:"analyzed_at"`
	Duration   time.Duration     `json:"-"`
}

// Service runs at most one analysis at a time and keeps the latest result
// as the current one. Nothing is cached or stored beyond that slot.
type Service struct {
	encoder Encoder
	client  ai.Client
	clock   application.Clock

	inFlight atomic.Bool

	mu         sync.Mutex
	current    *Record
	generation uint64
}

func NewService(encoder Encoder, client ai.Client, clock application.Clock) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{encoder: encoder, client: client, clock: clock}
}

// Analyze encodes src, asks the model once and validates the answer.
// Starting an analysis discards the current result. On failure the
// returned error is a *mushroom.Failure or ErrAnalysisInProgress.
func (s *Service) Analyze(ctx context.Context, src io.Reader, mediaType string) (Record, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Record{}, ErrAnalysisInProgress
	}
	defer s.inFlight.Store(false)

	gen := s.begin()
	id := uuid.NewString()
	start := s.clock.Now()
	log := logger.WithFields(logrus.Fields{"analysis_id": id, "media_type": mediaType})

	fail := func(stage Stage, err error) (Record, error) {
		kind, _ := mushroom.KindOf(err)
		log.WithError(err).WithFields(logrus.Fields{
			"stage":       stage,
			"kind":        kind,
			"duration_ms": s.clock.Now().Sub(start).Milliseconds(),
		}).Warn("analysis failed")
		return Record{}, err
	}

	log.WithField("stage", StageEncoding).Debug("analysis stage")
	payload, err := s.encoder.Encode(ctx, src, mediaType)
	if err != nil {
		return fail(StageEncoding, err)
	}

	log.WithFields(logrus.Fields{"stage": StageRequesting, "image_size": payload.Size()}).Debug("analysis stage")
	result, err := s.client.Analyze(ctx, payload)
	if err != nil {
		return fail(StageRequesting, err)
	}

	log.WithField("stage", StageValidating).Debug("analysis stage")
	if err := result.Validate(); err != nil {
		return fail(StageValidating, err)
	}

	end := s.clock.Now()
	rec := Record{
		ID:         id,
		Analysis:   result,
		AnalyzedAt: end,
		Duration:   end.Sub(start),
	}
	s.commit(gen, rec)

	log.WithFields(logrus.Fields{
		"stage":       StageSucceeded,
		"species":     result.Species,
		"edibility":   result.Edibility.String(),
		"confidence":  result.Confidence,
		"duration_ms": rec.Duration.Milliseconds(),
	}).Info("analysis succeeded")
	return rec, nil
}

// Current returns the latest successful analysis, if one is current.
func (s *Service) Current() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Record{}, false
	}
	return *s.current, true
}

// Reset discards the current result. A result still being produced is dropped when it arrives.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.current = nil
}

// InFlight reports whether an analysis is outstanding.
func (s *Service) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Service) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.current = nil
	return s.generation
}

func (s *Service) commit(gen uint64, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.current = &rec
}
