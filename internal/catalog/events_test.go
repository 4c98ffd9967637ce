package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgate/relgate/internal/qerr"
)

type eventRow struct {
	instanceID string
	occurredAt time.Time
}

// fakeRows satisfies just enough of pgx.Rows to drive FetchLastUpdate.
type fakeRows struct {
	rows []eventRow
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	*(dest[0].(*string)) = row.instanceID
	*(dest[1].(*time.Time)) = row.occurredAt
	return nil
}

type fakeQuerier struct {
	rows     []eventRow
	queryErr error

	execSQL  string
	execArgs []any
	execErr  error
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return &fakeRows{rows: q.rows}, nil
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execSQL = sql
	q.execArgs = args
	return pgconn.CommandTag{}, q.execErr
}

func TestFetchLastUpdate(t *testing.T) {
	ctx := context.Background()
	instance := uuid.New()
	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	t.Run("empty log", func(t *testing.T) {
		got, err := FetchLastUpdate(ctx, &fakeQuerier{})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("single row", func(t *testing.T) {
		q := &fakeQuerier{rows: []eventRow{{instance.String(), at}}}
		got, err := FetchLastUpdate(ctx, q)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, instance, got.InstanceID)
		assert.Equal(t, at, got.OccurredAt)
	})

	t.Run("more than one row is fatal", func(t *testing.T) {
		q := &fakeQuerier{rows: []eventRow{
			{instance.String(), at},
			{uuid.NewString(), at.Add(-time.Minute)},
		}}
		got, err := FetchLastUpdate(ctx, q)
		require.Error(t, err)
		assert.Nil(t, got)
		assert.Equal(t, qerr.CodeUnexpected, qerr.CodeOf(err))
	})

	t.Run("corrupt instance id is fatal", func(t *testing.T) {
		q := &fakeQuerier{rows: []eventRow{{"not-a-uuid", at}}}
		_, err := FetchLastUpdate(ctx, q)
		require.Error(t, err)
		assert.Equal(t, qerr.CodeUnexpected, qerr.CodeOf(err))
	})

	t.Run("query failure maps to postgres error", func(t *testing.T) {
		q := &fakeQuerier{queryErr: errors.New("connection refused")}
		_, err := FetchLastUpdate(ctx, q)
		require.Error(t, err)
		assert.Equal(t, qerr.CodePostgresError, qerr.CodeOf(err))
	})
}

func TestRecordUpdate(t *testing.T) {
	ctx := context.Background()
	instance := uuid.New()

	t.Run("appends one attributed row", func(t *testing.T) {
		q := &fakeQuerier{}
		require.NoError(t, RecordUpdate(ctx, q, instance))
		assert.Contains(t, q.execSQL, "INSERT INTO relgate_catalog.schema_update_events")
		require.Len(t, q.execArgs, 1)
		assert.Equal(t, instance.String(), q.execArgs[0])
	})

	t.Run("exec failure maps to postgres error", func(t *testing.T) {
		q := &fakeQuerier{execErr: errors.New("deadlock detected")}
		err := RecordUpdate(ctx, q, instance)
		require.Error(t, err)
		assert.Equal(t, qerr.CodePostgresError, qerr.CodeOf(err))
	})
}
