package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// DefaultListLimit caps ListRecent when no limit is given.
const DefaultListLimit = 50

// Repository provides database access for the invocation journal.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertInvocation stores inv. Empty ID and zero Created are filled in.
func (r *Repository) InsertInvocation(ctx context.Context, inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Created.IsZero() {
		inv.Created = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO invocations (id, source, route, task, correlation_id, status, outcome, duration_ms, error, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inv.ID, inv.Source, inv.Route, inv.Task, inv.CorrelationID, inv.Status, inv.Outcome, inv.DurationMs, inv.Error, inv.Created)
	if err != nil {
		return fmt.Errorf("%s - insert invocation %s: %w", repoLogPrefix, inv.ID, err)
	}
	return nil
}

// InsertInvocations stores a batch in one round trip.
func (r *Repository) InsertInvocations(ctx context.Context, invs []*Invocation) error {
	if len(invs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, inv := range invs {
		if inv.ID == "" {
			inv.ID = uuid.NewString()
		}
		if inv.Created.IsZero() {
			inv.Created = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO invocations (id, source, route, task, correlation_id, status, outcome, duration_ms, error, created)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			inv.ID, inv.Source, inv.Route, inv.Task, inv.CorrelationID, inv.Status, inv.Outcome, inv.DurationMs, inv.Error, inv.Created)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s - insert %d invocations: %w", repoLogPrefix, len(invs), err)
	}
	slog.Debug(fmt.Sprintf("%s - inserted %d invocations", repoLogPrefix, len(invs)))
	return nil
}

// ListRecent returns the newest invocations first.
func (r *Repository) ListRecent(ctx context.Context, params ListInvocationsParams) ([]*Invocation, error) {
	query, args := buildListQuery(params)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - list invocations: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []*Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(&inv.ID, &inv.Source, &inv.Route, &inv.Task, &inv.CorrelationID,
			&inv.Status, &inv.Outcome, &inv.DurationMs, &inv.Error, &inv.Created); err != nil {
			return nil, fmt.Errorf("%s - scan invocation: %w", repoLogPrefix, err)
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

func buildListQuery(params ListInvocationsParams) (string, []any) {
	var (
		where []string
		args  []any
	)
	if params.Route != "" {
		args = append(args, strings.ToLower(params.Route))
		where = append(where, fmt.Sprintf("route = $%d", len(args)))
	}
	if params.Outcome != "" {
		args = append(args, params.Outcome)
		where = append(where, fmt.Sprintf("outcome = $%d", len(args)))
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)

	var b strings.Builder
	b.WriteString(`SELECT id, source, route, task, correlation_id, status, outcome, duration_ms, error, created FROM invocations`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY created DESC LIMIT $%d", len(args))
	return b.String(), args
}

// CountByOutcome returns invocation counts per outcome, largest first.
func (r *Repository) CountByOutcome(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT outcome, COUNT(*) FROM invocations GROUP BY outcome ORDER BY COUNT(*) DESC, outcome`)
	if err != nil {
		return nil, fmt.Errorf("%s - count by outcome: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("%s - scan outcome count: %w", repoLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Clear removes every journal row.
func (r *Repository) Clear(ctx context.Context) error {
	return ClearJournal(ctx, r.pool)
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
