package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/operations-host/pkg/codec"
	"github.com/morezero/operations-host/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// FailureSubject overrides the base failure subject (COMMS_FAILURE_SUBJECT).
	FailureSubject string
}

// CommsPublisher publishes failure events to COMMS subjects.
type CommsPublisher struct {
	nc             *comms.Conn
	failureSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.DefaultFailureSubject
	if opts != nil && opts.FailureSubject != "" {
		subject = opts.FailureSubject
	}
	return &CommsPublisher{nc: nc, failureSubject: subject}
}

// PublishFailure publishes a FailureEvent to both the per-source and the
// base failure subjects.
func (p *CommsPublisher) PublishFailure(_ context.Context, event *FailureEvent) error {
	data, err := codec.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	sourceSubject := commsutil.BuildFailureSubject(p.failureSubject, event.Source)
	if err := p.nc.Publish(sourceSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, sourceSubject, err))
		return err
	}

	if sourceSubject != p.failureSubject {
		if err := p.nc.Publish(p.failureSubject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.failureSubject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published failure event %s (%s)", commsPublisherLogPrefix, event.ID, event.Source))
	return nil
}
