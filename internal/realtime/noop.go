package realtime

import (
	"context"
	"errors"

	"github.com/boxinggym/walkin-backend/internal/models"
)

// ErrDisabled is returned by Subscribe when no broker is configured
var ErrDisabled = errors.New("realtime updates are not configured")

// Subscriber streams change events for a session date
type Subscriber interface {
	Subscribe(ctx context.Context, sessionDate string) (<-chan models.ChangeEvent, error)
}

// NoopPublisher drops every event. Used when REDIS_URL is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, evt models.ChangeEvent) error { return nil }

func (NoopPublisher) Subscribe(ctx context.Context, sessionDate string) (<-chan models.ChangeEvent, error) {
	return nil, ErrDisabled
}
