// Package natsbridge serves host operations over COMMS request/reply. The
// subject tail under the configured prefix names the route, and the
// envelope params become the JSON body of an ordinary dispatch.
package natsbridge

import (
	"encoding/json"

	"github.com/morezero/operations-host/pkg/hooks"
)

// Request is the JSON envelope for incoming COMMS operation requests.
type Request struct {
	ID string `json:"id"`
	// Method defaults to POST.
	Method  string             `json:"method,omitempty"`
	Params  json.RawMessage    `json:"params,omitempty"`
	Headers map[string]string  `json:"headers,omitempty"`
	Ctx     *InvocationContext `json:"ctx,omitempty"`
}

// Response is the JSON envelope for COMMS operation responses.
type Response struct {
	ID            string             `json:"id"`
	Ok            bool               `json:"ok"`
	Status        int                `json:"status"`
	Result        json.RawMessage    `json:"result,omitempty"`
	Error         *hooks.ErrorDetail `json:"error,omitempty"`
	CorrelationID string             `json:"correlationId,omitempty"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}
