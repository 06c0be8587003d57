package ai

import (
	"context"

	"github.com/bryanwahyu/mushroom-id/internal/domain/mushroom"
)

// Client identifies the mushroom in one image with a single remote call.
// Errors are *mushroom.Failure values.
type Client interface {
	Analyze(ctx context.Context, image mushroom.ImagePayload) (mushroom.Analysis, error)
}

// Pinger reports whether the configured model is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
