package db

import (
	"reflect"
	"testing"
)

const repositoryTestPrefix = "db:repository_test"

func TestBuildListQuery(t *testing.T) {
	const cols = `SELECT id, source, route, task, correlation_id, status, outcome, duration_ms, error, created FROM invocations`

	tests := []struct {
		name   string
		params ListInvocationsParams
		query  string
		args   []any
	}{
		{
			name:  "defaults",
			query: cols + " ORDER BY created DESC LIMIT $1",
			args:  []any{DefaultListLimit},
		},
		{
			name:   "route",
			params: ListInvocationsParams{Route: "/Calc/Add", Limit: 5},
			query:  cols + " WHERE route = $1 ORDER BY created DESC LIMIT $2",
			args:   []any{"/calc/add", 5},
		},
		{
			name:   "route and outcome",
			params: ListInvocationsParams{Route: "/x", Outcome: "failed"},
			query:  cols + " WHERE route = $1 AND outcome = $2 ORDER BY created DESC LIMIT $3",
			args:   []any{"/x", "failed", DefaultListLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.params)
			if query != tt.query {
				t.Errorf("%s - query = %q\nwant %q", repositoryTestPrefix, query, tt.query)
			}
			if !reflect.DeepEqual(args, tt.args) {
				t.Errorf("%s - args = %v, want %v", repositoryTestPrefix, args, tt.args)
			}
		})
	}
}
