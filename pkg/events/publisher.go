package events

import (
	"context"
	"fmt"

	"github.com/morezero/operations-host/pkg/hooks"
)

const publisherLogPrefix = "events:publisher"

// EventPublisher is the interface for publishing failure events.
type EventPublisher interface {
	PublishFailure(ctx context.Context, event *FailureEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishFailure is a no-op.
func (p *NoOpPublisher) PublishFailure(_ context.Context, _ *FailureEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *FailureEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *FailureEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishFailure calls the callback.
func (p *CallbackPublisher) PublishFailure(ctx context.Context, event *FailureEvent) error {
	return p.callback(ctx, event)
}

// Reporter returns an error handler that forwards every failure to pub.
// A publish error is returned to the pipeline, which logs it.
func Reporter(pub EventPublisher, service string) hooks.ErrorHandler {
	return hooks.ErrorHandlerFunc(func(ctx context.Context, f *hooks.Failure) error {
		if err := pub.PublishFailure(ctx, NewFailureEvent(service, f)); err != nil {
			return fmt.Errorf("%s - publish failure event: %w", publisherLogPrefix, err)
		}
		return nil
	})
}
