package dataops

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgate/relgate/internal/engine"
	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/pkg/logger"
)

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"users"`, quoteIdent("users"))
	assert.Equal(t, `"weird""name"`, quoteIdent(`weird"name`))
	assert.Equal(t, `"public"."orders"`, quoteTable(query.TableName{Schema: "public", Name: "orders"}))
}

func TestBuildWhere(t *testing.T) {
	tests := []struct {
		name     string
		where    string
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "empty filter",
			where:   ``,
			wantSQL: "",
		},
		{
			name:     "bare value is equality",
			where:    `{"id": 7}`,
			wantSQL:  ` WHERE "id" = $1`,
			wantArgs: []interface{}{float64(7)},
		},
		{
			name:     "operator object",
			where:    `{"total": {"$gt": 100}}`,
			wantSQL:  ` WHERE "total" > $1`,
			wantArgs: []interface{}{float64(100)},
		},
		{
			name:     "columns combine with AND in name order",
			where:    `{"b": 2, "a": 1}`,
			wantSQL:  ` WHERE "a" = $1 AND "b" = $2`,
			wantArgs: []interface{}{float64(1), float64(2)},
		},
		{
			name:     "range on one column",
			where:    `{"total": {"$gte": 10, "$lte": 20}}`,
			wantSQL:  ` WHERE "total" >= $1 AND "total" <= $2`,
			wantArgs: []interface{}{float64(10), float64(20)},
		},
		{
			name:     "in list",
			where:    `{"status": {"$in": ["new", "paid"]}}`,
			wantSQL:  ` WHERE "status" IN ($1, $2)`,
			wantArgs: []interface{}{"new", "paid"},
		},
		{
			name:    "null check",
			where:   `{"deleted_at": {"$is_null": true}}`,
			wantSQL: ` WHERE "deleted_at" IS NULL`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []interface{}
			got, err := buildWhere(json.RawMessage(tt.where), &args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, got)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildWhereErrors(t *testing.T) {
	tests := []struct {
		name  string
		where string
	}{
		{"unknown operator", `{"id": {"$explode": 1}}`},
		{"in expects array", `{"id": {"$in": 5}}`},
		{"not an object", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []interface{}
			_, err := buildWhere(json.RawMessage(tt.where), &args)
			require.Error(t, err)
			assert.Equal(t, qerr.CodeParseFailed, qerr.CodeOf(err))
		})
	}
}

type fakeTx struct {
	pgx.Tx
}

func (t fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 2"), nil
}

func TestInsertLogsOperation(t *testing.T) {
	log := logger.New("dataops-test", "test")
	log.DisableConsoleOutput()
	entries := log.Subscribe()

	exec := NewExecutor(log)
	rc := &engine.RunCtx{Tx: fakeTx{}}
	out, err := exec.Insert(context.Background(), rc, &query.Insert{
		Table:   query.TableName{Schema: "public", Name: "users"},
		Objects: json.RawMessage(`[{"id": 1}, {"id": 2}]`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"affected_rows": 2}`, string(out))

	select {
	case entry := <-entries:
		assert.Equal(t, "INFO", entry.Level)
		assert.Contains(t, entry.Message, "public.users")
	default:
		t.Fatal("expected a log entry for the insert")
	}
}
