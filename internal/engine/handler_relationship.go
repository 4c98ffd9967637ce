package engine

import (
	"context"
	"encoding/json"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

// trackedTable resolves a table reference against the cache, failing
// with a validation error under the "table" path segment when the
// table is not tracked.
func trackedTable(rc *RunCtx, t query.TableName) (*schema.TableInfo, error) {
	info := rc.Cache.Table(tableKey(t))
	if info == nil {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotTracked, "table not tracked: %s", t), "table")
	}
	return info, nil
}

func (e *Engine) handleCreateRelationship(ctx context.Context, rc *RunCtx, table query.TableName, name string, kind schema.RelationshipKind, using json.RawMessage, comment *string) ([]byte, error) {
	info, err := trackedTable(rc, table)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "relationship name cannot be empty"), "name")
	}
	if _, ok := info.Relationships[name]; ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyExists, "relationship %q already exists on table %s", name, table), "name")
	}
	if len(using) == 0 {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "relationship definition is required"), "using")
	}

	if err := e.relationships.Create(ctx, rc.Tx, info.Table, name, kind, using, comment); err != nil {
		return nil, err
	}

	info.Relationships[name] = &schema.Relationship{Name: name, Kind: kind, Using: using, Comment: comment}
	return successMsg, nil
}

func (e *Engine) handleDropRelationship(ctx context.Context, rc *RunCtx, c *query.DropRelationship) ([]byte, error) {
	info, err := trackedTable(rc, c.Table)
	if err != nil {
		return nil, err
	}
	if _, ok := info.Relationships[c.Relationship]; !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "relationship %q does not exist on table %s", c.Relationship, c.Table), "relationship")
	}

	if err := e.relationships.Drop(ctx, rc.Tx, info.Table, c.Relationship); err != nil {
		return nil, err
	}

	delete(info.Relationships, c.Relationship)
	return successMsg, nil
}

func (e *Engine) handleRenameRelationship(ctx context.Context, rc *RunCtx, c *query.RenameRelationship) ([]byte, error) {
	info, err := trackedTable(rc, c.Table)
	if err != nil {
		return nil, err
	}
	rel, ok := info.Relationships[c.Name]
	if !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "relationship %q does not exist on table %s", c.Name, c.Table), "name")
	}
	if _, ok := info.Relationships[c.NewName]; ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyExists, "relationship %q already exists on table %s", c.NewName, c.Table), "new_name")
	}

	if err := e.relationships.Rename(ctx, rc.Tx, info.Table, c.Name, c.NewName); err != nil {
		return nil, err
	}

	delete(info.Relationships, c.Name)
	rel.Name = c.NewName
	info.Relationships[c.NewName] = rel
	return successMsg, nil
}

func (e *Engine) handleSetRelationshipComment(ctx context.Context, rc *RunCtx, c *query.SetRelationshipComment) ([]byte, error) {
	info, err := trackedTable(rc, c.Table)
	if err != nil {
		return nil, err
	}
	rel, ok := info.Relationships[c.Relationship]
	if !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "relationship %q does not exist on table %s", c.Relationship, c.Table), "relationship")
	}

	if err := e.relationships.SetComment(ctx, rc.Tx, info.Table, c.Relationship, c.Comment); err != nil {
		return nil, err
	}

	rel.Comment = c.Comment
	return successMsg, nil
}
