// Package dataops is a straightforward pgx-backed implementation of
// the engine's data-operation contract. It covers the common cases of
// the filter language; anything fancier belongs in a dedicated planner
// behind the same interface.
package dataops

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/engine"
	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/pkg/logger"
)

// Executor implements engine.DataExecutor.
type Executor struct {
	logger *logger.Logger
}

// NewExecutor creates a new data-operation executor
func NewExecutor(logger *logger.Logger) *Executor {
	return &Executor{logger: logger}
}

var _ engine.DataExecutor = (*Executor)(nil)

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteTable(t query.TableName) string {
	return quoteIdent(t.Schema) + "." + quoteIdent(t.Name)
}

var whereOps = map[string]string{
	"$eq":   "=",
	"$ne":   "<>",
	"$gt":   ">",
	"$lt":   "<",
	"$gte":  ">=",
	"$lte":  "<=",
	"$like": "LIKE",
}

// buildWhere renders a filter object into a WHERE clause. Columns are
// combined with AND; each column maps either to a bare value (equality)
// or to an operator object such as {"$gt": 5} or {"$in": [...]}.
func buildWhere(raw json.RawMessage, args *[]interface{}) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var filter map[string]json.RawMessage
	if err := json.Unmarshal(raw, &filter); err != nil {
		return "", qerr.Wrap(qerr.CodeParseFailed, "malformed where clause", err)
	}
	if len(filter) == 0 {
		return "", nil
	}

	cols := make([]string, 0, len(filter))
	for col := range filter {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var conds []string
	for _, col := range cols {
		val := filter[col]

		var opObj map[string]json.RawMessage
		if err := json.Unmarshal(val, &opObj); err == nil && len(opObj) > 0 && hasOperatorKeys(opObj) {
			opNames := make([]string, 0, len(opObj))
			for op := range opObj {
				opNames = append(opNames, op)
			}
			sort.Strings(opNames)
			for _, op := range opNames {
				cond, err := buildCondition(col, op, opObj[op], args)
				if err != nil {
					return "", err
				}
				conds = append(conds, cond)
			}
			continue
		}

		// Bare value means equality.
		var v interface{}
		if err := json.Unmarshal(val, &v); err != nil {
			return "", qerr.Wrap(qerr.CodeParseFailed, fmt.Sprintf("malformed filter value for column %q", col), err)
		}
		*args = append(*args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", quoteIdent(col), len(*args)))
	}

	return " WHERE " + strings.Join(conds, " AND "), nil
}

func hasOperatorKeys(obj map[string]json.RawMessage) bool {
	for k := range obj {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func buildCondition(col, op string, raw json.RawMessage, args *[]interface{}) (string, error) {
	switch op {
	case "$in", "$nin":
		var vals []interface{}
		if err := json.Unmarshal(raw, &vals); err != nil {
			return "", qerr.Wrap(qerr.CodeParseFailed, fmt.Sprintf("%s for column %q expects an array", op, col), err)
		}
		placeholders := make([]string, len(vals))
		for i, v := range vals {
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(*args))
		}
		kw := "IN"
		if op == "$nin" {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", quoteIdent(col), kw, strings.Join(placeholders, ", ")), nil

	case "$is_null":
		var isNull bool
		if err := json.Unmarshal(raw, &isNull); err != nil {
			return "", qerr.Wrap(qerr.CodeParseFailed, fmt.Sprintf("$is_null for column %q expects a boolean", col), err)
		}
		if isNull {
			return quoteIdent(col) + " IS NULL", nil
		}
		return quoteIdent(col) + " IS NOT NULL", nil

	default:
		sqlOp, ok := whereOps[op]
		if !ok {
			return "", qerr.Newf(qerr.CodeParseFailed, "unknown filter operator %q for column %q", op, col)
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", qerr.Wrap(qerr.CodeParseFailed, fmt.Sprintf("malformed filter value for column %q", col), err)
		}
		*args = append(*args, v)
		return fmt.Sprintf("%s %s $%d", quoteIdent(col), sqlOp, len(*args)), nil
	}
}

// rowsToJSON scans all rows into a JSON array of objects.
func rowsToJSON(rows pgx.Rows, stringifyNumerics bool) ([]map[string]interface{}, error) {
	fields := rows.FieldDescriptions()
	out := make([]map[string]interface{}, 0)

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, qerr.Postgres(err)
		}
		row := make(map[string]interface{}, len(fields))
		for i, f := range fields {
			v := vals[i]
			if stringifyNumerics {
				switch n := v.(type) {
				case int16:
					v = fmt.Sprintf("%d", n)
				case int32:
					v = fmt.Sprintf("%d", n)
				case int64:
					v = fmt.Sprintf("%d", n)
				case float32:
					v = fmt.Sprintf("%v", n)
				case float64:
					v = fmt.Sprintf("%v", n)
				}
			}
			row[string(f.Name)] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, qerr.Postgres(err)
	}
	return out, nil
}

type mutationResult struct {
	AffectedRows int64                    `json:"affected_rows"`
	Returning    []map[string]interface{} `json:"returning,omitempty"`
}

// Insert builds one multi-row INSERT from the objects payload.
func (x *Executor) Insert(ctx context.Context, rc *engine.RunCtx, c *query.Insert) ([]byte, error) {
	x.logger.Infof("Inserting rows into %s", c.Table)

	var objects []map[string]interface{}
	if err := json.Unmarshal(c.Objects, &objects); err != nil {
		return nil, qerr.WithField(qerr.Wrap(qerr.CodeParseFailed, "objects must be an array of rows", err), "objects")
	}
	if len(objects) == 0 {
		out, _ := json.Marshal(mutationResult{AffectedRows: 0})
		return out, nil
	}

	cols := make([]string, 0, len(objects[0]))
	for col := range objects[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var args []interface{}
	valueRows := make([]string, 0, len(objects))
	for i, obj := range objects {
		if len(obj) != len(cols) {
			return nil, qerr.WithField(qerr.Newf(qerr.CodeValidationFailed,
				"row %d does not match the columns of the first row", i), "objects")
		}
		placeholders := make([]string, len(cols))
		for j, col := range cols {
			v, ok := obj[col]
			if !ok {
				return nil, qerr.WithField(qerr.Newf(qerr.CodeValidationFailed,
					"row %d is missing column %q", i, col), "objects")
			}
			args = append(args, v)
			placeholders[j] = fmt.Sprintf("$%d", len(args))
		}
		valueRows = append(valueRows, "("+strings.Join(placeholders, ", ")+")")
	}

	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteTable(c.Table), strings.Join(quoted, ", "), strings.Join(valueRows, ", "))

	return x.runMutation(ctx, rc, sql, args, c.Returning)
}

// Select runs a filtered select and returns the rows as a JSON array.
func (x *Executor) Select(ctx context.Context, rc *engine.RunCtx, c *query.Select) ([]byte, error) {
	x.logger.Infof("Selecting rows from %s", c.Table)

	colSQL := "*"
	if len(c.Columns) > 0 {
		var cols []string
		if err := json.Unmarshal(c.Columns, &cols); err != nil {
			return nil, qerr.WithField(qerr.Wrap(qerr.CodeParseFailed, "columns must be an array of names", err), "columns")
		}
		if len(cols) > 0 {
			quoted := make([]string, len(cols))
			for i, col := range cols {
				if col == "*" {
					quoted[i] = "*"
					continue
				}
				quoted[i] = quoteIdent(col)
			}
			colSQL = strings.Join(quoted, ", ")
		}
	}

	var args []interface{}
	whereSQL, err := buildWhere(c.Where, &args)
	if err != nil {
		return nil, qerr.WithField(err, "where")
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s", colSQL, quoteTable(c.Table), whereSQL)

	if len(c.OrderBy) > 0 {
		var orderCols []string
		if err := json.Unmarshal(c.OrderBy, &orderCols); err != nil {
			return nil, qerr.WithField(qerr.Wrap(qerr.CodeParseFailed, "order_by must be an array of names", err), "order_by")
		}
		terms := make([]string, len(orderCols))
		for i, col := range orderCols {
			dir := " ASC"
			switch {
			case strings.HasPrefix(col, "-"):
				col = col[1:]
				dir = " DESC"
			case strings.HasPrefix(col, "+"):
				col = col[1:]
			}
			terms[i] = quoteIdent(col) + dir
		}
		sql += " ORDER BY " + strings.Join(terms, ", ")
	}

	if c.Limit != nil {
		args = append(args, *c.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if c.Offset != nil {
		args = append(args, *c.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := rc.Tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	defer rows.Close()

	result, err := rowsToJSON(rows, rc.StringifyNumerics)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// Update runs a filtered update built from the $set payload.
func (x *Executor) Update(ctx context.Context, rc *engine.RunCtx, c *query.Update) ([]byte, error) {
	x.logger.Infof("Updating rows in %s", c.Table)

	var set map[string]interface{}
	if err := json.Unmarshal(c.Set, &set); err != nil {
		return nil, qerr.WithField(qerr.Wrap(qerr.CodeParseFailed, "$set must be an object", err), "$set")
	}
	if len(set) == 0 {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "$set cannot be empty"), "$set")
	}

	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var args []interface{}
	assignments := make([]string, len(cols))
	for i, col := range cols {
		args = append(args, set[col])
		assignments[i] = fmt.Sprintf("%s = $%d", quoteIdent(col), len(args))
	}

	whereSQL, err := buildWhere(c.Where, &args)
	if err != nil {
		return nil, qerr.WithField(err, "where")
	}

	sql := fmt.Sprintf("UPDATE %s SET %s%s", quoteTable(c.Table), strings.Join(assignments, ", "), whereSQL)
	return x.runMutation(ctx, rc, sql, args, c.Returning)
}

// Delete runs a filtered delete.
func (x *Executor) Delete(ctx context.Context, rc *engine.RunCtx, c *query.Delete) ([]byte, error) {
	x.logger.Infof("Deleting rows from %s", c.Table)

	var args []interface{}
	whereSQL, err := buildWhere(c.Where, &args)
	if err != nil {
		return nil, qerr.WithField(err, "where")
	}

	sql := fmt.Sprintf("DELETE FROM %s%s", quoteTable(c.Table), whereSQL)
	return x.runMutation(ctx, rc, sql, args, c.Returning)
}

// Count runs a filtered count.
func (x *Executor) Count(ctx context.Context, rc *engine.RunCtx, c *query.Count) ([]byte, error) {
	x.logger.Infof("Counting rows in %s", c.Table)

	countExpr := "COUNT(*)"
	if len(c.Distinct) > 0 {
		quoted := make([]string, len(c.Distinct))
		for i, col := range c.Distinct {
			quoted[i] = quoteIdent(col)
		}
		countExpr = fmt.Sprintf("COUNT(DISTINCT (%s))", strings.Join(quoted, ", "))
	}

	var args []interface{}
	whereSQL, err := buildWhere(c.Where, &args)
	if err != nil {
		return nil, qerr.WithField(err, "where")
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s", countExpr, quoteTable(c.Table), whereSQL)

	var count int64
	if err := rc.Tx.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return nil, qerr.Postgres(err)
	}
	return json.Marshal(map[string]int64{"count": count})
}

// runMutation executes an INSERT/UPDATE/DELETE, optionally with a
// RETURNING clause, and renders the standard mutation response.
func (x *Executor) runMutation(ctx context.Context, rc *engine.RunCtx, sql string, args []interface{}, returning []string) ([]byte, error) {
	if len(returning) == 0 {
		tag, err := rc.Tx.Exec(ctx, sql, args...)
		if err != nil {
			return nil, qerr.Postgres(err)
		}
		return json.Marshal(mutationResult{AffectedRows: tag.RowsAffected()})
	}

	quoted := make([]string, len(returning))
	for i, col := range returning {
		quoted[i] = quoteIdent(col)
	}
	sql += " RETURNING " + strings.Join(quoted, ", ")

	rows, err := rc.Tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, qerr.Postgres(err)
	}
	defer rows.Close()

	result, err := rowsToJSON(rows, rc.StringifyNumerics)
	if err != nil {
		return nil, err
	}
	return json.Marshal(mutationResult{AffectedRows: int64(len(result)), Returning: result})
}
