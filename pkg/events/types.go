// Package events defines failure events and the publishers that carry them
// off the host.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/morezero/operations-host/pkg/hooks"
)

// FailureEvent is emitted for every unhandled request or task failure.
type FailureEvent struct {
	ID            string `json:"id"`
	Service       string `json:"service,omitempty"`
	Source        string `json:"source"`
	Route         string `json:"route,omitempty"`
	Task          string `json:"task,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Status        int    `json:"status,omitempty"`
	Error         string `json:"error"`
	Timestamp     string `json:"timestamp"`
}

// NewFailureEvent converts a pipeline failure into an event.
func NewFailureEvent(service string, f *hooks.Failure) *FailureEvent {
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return &FailureEvent{
		ID:            uuid.NewString(),
		Service:       service,
		Source:        f.Source,
		Route:         f.Route,
		Task:          f.Task,
		CorrelationID: f.CorrelationID,
		Status:        f.Status,
		Error:         msg,
		Timestamp:     at.UTC().Format(time.RFC3339Nano),
	}
}
