package engine

import (
	"context"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

func (e *Engine) handleCreatePermission(ctx context.Context, rc *RunCtx, table query.TableName, verb query.PermissionVerb, def query.PermissionDefinition) ([]byte, error) {
	info, err := trackedTable(rc, table)
	if err != nil {
		return nil, err
	}
	if def.Role == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "role cannot be empty"), "role")
	}
	key := schema.PermissionKey{Role: def.Role, Verb: string(verb)}
	if _, ok := info.Permissions[key]; ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyExists,
			"%s permission for role %q already exists on table %s", verb, def.Role, table), "role")
	}
	if len(def.Permission) == 0 {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "permission definition is required"), "permission")
	}

	if err := e.permissions.Create(ctx, rc.Tx, info.Table, def.Role, string(verb), def.Permission, def.Comment); err != nil {
		return nil, err
	}

	info.Permissions[key] = &schema.Permission{
		Role:       def.Role,
		Verb:       string(verb),
		Definition: def.Permission,
		Comment:    def.Comment,
	}
	return successMsg, nil
}

func (e *Engine) handleDropPermission(ctx context.Context, rc *RunCtx, table query.TableName, verb query.PermissionVerb, role string) ([]byte, error) {
	info, err := trackedTable(rc, table)
	if err != nil {
		return nil, err
	}
	key := schema.PermissionKey{Role: role, Verb: string(verb)}
	if _, ok := info.Permissions[key]; !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists,
			"%s permission for role %q does not exist on table %s", verb, role, table), "role")
	}

	if err := e.permissions.Drop(ctx, rc.Tx, info.Table, role, string(verb)); err != nil {
		return nil, err
	}

	delete(info.Permissions, key)
	return successMsg, nil
}

func (e *Engine) handleSetPermissionComment(ctx context.Context, rc *RunCtx, c *query.SetPermissionComment) ([]byte, error) {
	info, err := trackedTable(rc, c.Table)
	if err != nil {
		return nil, err
	}
	switch c.Verb {
	case query.VerbInsert, query.VerbSelect, query.VerbUpdate, query.VerbDelete:
	default:
		return nil, qerr.WithField(qerr.Newf(qerr.CodeValidationFailed, "invalid permission type %q", c.Verb), "type")
	}
	key := schema.PermissionKey{Role: c.Role, Verb: string(c.Verb)}
	perm, ok := info.Permissions[key]
	if !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists,
			"%s permission for role %q does not exist on table %s", c.Verb, c.Role, c.Table), "role")
	}

	if err := e.permissions.SetComment(ctx, rc.Tx, info.Table, c.Role, string(c.Verb), c.Comment); err != nil {
		return nil, err
	}

	perm.Comment = c.Comment
	return successMsg, nil
}
