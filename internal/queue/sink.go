package queue

import (
	"context"

	"github.com/pkg/errors"

	"laundry-queue-backend/internal/model"
)

// Sink consumes turn events, typically by notifying the requester.
type Sink interface {
	Notify(ctx context.Context, event model.TurnEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event model.TurnEvent) error

func (f SinkFunc) Notify(ctx context.Context, event model.TurnEvent) error {
	return f(ctx, event)
}

// MultiSink delivers each event to every sink and reports the first failure.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, event model.TurnEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, event); err != nil && first == nil {
			first = errors.Wrapf(err, "sink %T", s)
		}
	}
	return first
}
