// Package catalog owns the engine's bookkeeping schema in Postgres:
// the tracked-catalog tables and the append-only schema-update event
// log that cooperating instances poll to detect a stale cache.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relgate/relgate/internal/qerr"
)

// Querier is the narrow store surface the event log needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SchemaUpdate is one row of the schema-update event log.
type SchemaUpdate struct {
	InstanceID uuid.UUID
	OccurredAt time.Time
}

const fetchLastUpdateSQL = `
	SELECT instance_id, occurred_at
	FROM relgate_catalog.schema_update_events
	ORDER BY occurred_at DESC
	LIMIT 1`

const recordUpdateSQL = `
	INSERT INTO relgate_catalog.schema_update_events (instance_id)
	VALUES ($1)`

// FetchLastUpdate returns the most recent schema-update event, or nil
// if the log is empty. More than one row from the LIMIT-1 query means
// the store broke a basic invariant; that is fatal and never retried.
func FetchLastUpdate(ctx context.Context, q Querier) (*SchemaUpdate, error) {
	rows, err := q.Query(ctx, fetchLastUpdateSQL)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	defer rows.Close()

	var updates []SchemaUpdate
	for rows.Next() {
		var raw string
		var upd SchemaUpdate
		if err := rows.Scan(&raw, &upd.OccurredAt); err != nil {
			return nil, qerr.Postgres(err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, qerr.Internal("corrupt instance id in schema update event log: " + raw)
		}
		upd.InstanceID = id
		updates = append(updates, upd)
	}
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	switch len(updates) {
	case 0:
		return nil, nil
	case 1:
		return &updates[0], nil
	default:
		return nil, qerr.Internal("db sent more than one row for the schema update event query")
	}
}

// RecordUpdate appends one event attributing the catalog change to the
// given instance; the timestamp is store-generated on insert. The log
// is append-only: rows are never updated or deleted.
func RecordUpdate(ctx context.Context, q Querier, instanceID uuid.UUID) error {
	if _, err := q.Exec(ctx, recordUpdateSQL, instanceID.String()); err != nil {
		return qerr.Postgres(err)
	}
	return nil
}
