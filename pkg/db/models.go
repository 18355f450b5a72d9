package db

import "time"

// Invocation is one row of the invocations table: a completed request, a
// failed request, or a failed scheduler tick.
type Invocation struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Route         string    `json:"route,omitempty"`
	Task          string    `json:"task,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Status        int       `json:"status"`
	Outcome       string    `json:"outcome"`
	DurationMs    float64   `json:"duration_ms"`
	Error         *string   `json:"error,omitempty"`
	Created       time.Time `json:"created"`
}

// ListInvocationsParams filters ListRecent. Zero values match everything.
type ListInvocationsParams struct {
	Route   string
	Outcome string
	Limit   int
}

// OutcomeCount is one row of CountByOutcome.
type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}
