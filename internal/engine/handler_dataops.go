package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

// adminRole bypasses permission rules on data operations.
const adminRole = "admin"

// DataExecutor plans and runs the plain data operations inside the
// call's transaction. The engine only depends on this narrow contract;
// SQL generation lives behind it.
type DataExecutor interface {
	Insert(ctx context.Context, rc *RunCtx, c *query.Insert) ([]byte, error)
	Select(ctx context.Context, rc *RunCtx, c *query.Select) ([]byte, error)
	Update(ctx context.Context, rc *RunCtx, c *query.Update) ([]byte, error)
	Delete(ctx context.Context, rc *RunCtx, c *query.Delete) ([]byte, error)
	Count(ctx context.Context, rc *RunCtx, c *query.Count) ([]byte, error)
}

// dataOpTable resolves and authorizes a data operation's target table:
// it must be tracked, and non-admin roles need a permission rule for
// the verb.
func (e *Engine) dataOpTable(rc *RunCtx, table query.TableName, verb query.PermissionVerb) (*schema.TableInfo, error) {
	info, err := trackedTable(rc, table)
	if err != nil {
		return nil, err
	}
	if rc.Identity.Role == adminRole || rc.Identity.Role == "" {
		return info, nil
	}
	key := schema.PermissionKey{Role: rc.Identity.Role, Verb: string(verb)}
	if _, ok := info.Permissions[key]; !ok {
		return nil, qerr.Newf(qerr.CodePermissionDenied,
			"role %q does not have %s permission on table %s", rc.Identity.Role, verb, table)
	}
	return info, nil
}

func (e *Engine) handleInsert(ctx context.Context, rc *RunCtx, c *query.Insert) ([]byte, error) {
	if _, err := e.dataOpTable(rc, c.Table, query.VerbInsert); err != nil {
		return nil, err
	}
	return e.dataExec.Insert(ctx, rc, c)
}

func (e *Engine) handleSelect(ctx context.Context, rc *RunCtx, c *query.Select) ([]byte, error) {
	if _, err := e.dataOpTable(rc, c.Table, query.VerbSelect); err != nil {
		return nil, err
	}
	return e.dataExec.Select(ctx, rc, c)
}

func (e *Engine) handleUpdate(ctx context.Context, rc *RunCtx, c *query.Update) ([]byte, error) {
	if _, err := e.dataOpTable(rc, c.Table, query.VerbUpdate); err != nil {
		return nil, err
	}
	return e.dataExec.Update(ctx, rc, c)
}

func (e *Engine) handleDelete(ctx context.Context, rc *RunCtx, c *query.Delete) ([]byte, error) {
	if _, err := e.dataOpTable(rc, c.Table, query.VerbDelete); err != nil {
		return nil, err
	}
	return e.dataExec.Delete(ctx, rc, c)
}

func (e *Engine) handleCount(ctx context.Context, rc *RunCtx, c *query.Count) ([]byte, error) {
	if _, err := e.dataOpTable(rc, c.Table, query.VerbSelect); err != nil {
		return nil, err
	}
	return e.dataExec.Count(ctx, rc, c)
}

// handleRunSQL executes arbitrary SQL in the call's transaction. Only
// the admin role may use it, and it is conservatively treated as a
// catalog change by the reload policy.
func (e *Engine) handleRunSQL(ctx context.Context, rc *RunCtx, c *query.RunSQL) ([]byte, error) {
	if rc.Identity.Role != adminRole && rc.Identity.Role != "" {
		return nil, qerr.New(qerr.CodePermissionDenied, "run_sql requires the admin role")
	}
	if c.SQL == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "sql statement is required"), "sql")
	}

	rc.Logger.Infof("Running raw SQL for role %q", rc.Identity.Role)

	rows, err := rc.Tx.Query(ctx, c.SQL)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	if len(fields) == 0 {
		// Statement produced no row description (DDL, DML without
		// RETURNING, ...).
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			return nil, qerr.Postgres(err)
		}
		return json.Marshal(map[string]interface{}{"result_type": "CommandOk", "result": nil})
	}

	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = string(f.Name)
	}
	result := [][]string{header}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, qerr.Postgres(err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			if v == nil {
				row[i] = "NULL"
			} else {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}

	return json.Marshal(map[string]interface{}{"result_type": "TuplesOk", "result": result})
}
