package engine

import (
	"context"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

func tableKey(t query.TableName) schema.TableKey {
	return schema.TableKey{Schema: t.Schema, Name: t.Name}
}

func (e *Engine) handleTrackTable(ctx context.Context, rc *RunCtx, c *query.TrackTable) ([]byte, error) {
	key := tableKey(c.Table)
	if rc.Cache.Table(key) != nil {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyTracked, "view/table already tracked: %s", key), "table")
	}

	if err := e.tracking.TrackTable(ctx, rc.Tx, key.Schema, key.Name); err != nil {
		return nil, err
	}

	rc.Cache.TrackTable(key)
	return successMsg, nil
}

func (e *Engine) handleUntrackTable(ctx context.Context, rc *RunCtx, c *query.UntrackTable) ([]byte, error) {
	key := tableKey(c.Table)
	info := rc.Cache.Table(key)
	if info == nil {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotTracked, "table not tracked: %s", key), "table")
	}

	// Without cascade, refuse to drop a table that still carries
	// dependent metadata.
	if !c.Cascade && (len(info.Relationships) > 0 || len(info.Permissions) > 0) {
		return nil, qerr.Newf(qerr.CodeValidationFailed,
			"cannot untrack %s: it has dependent relationships or permissions, use cascade", key)
	}

	if err := e.tracking.UntrackTable(ctx, rc.Tx, key.Schema, key.Name); err != nil {
		return nil, err
	}

	rc.Cache.UntrackTable(key)
	return successMsg, nil
}

func (e *Engine) handleTrackFunction(ctx context.Context, rc *RunCtx, c *query.TrackFunction) ([]byte, error) {
	key := tableKey(c.Function)
	if _, ok := rc.Cache.Functions[key]; ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyTracked, "function already tracked: %s", key), "function")
	}

	if err := e.tracking.TrackFunction(ctx, rc.Tx, key.Schema, key.Name); err != nil {
		return nil, err
	}

	rc.Cache.Functions[key] = &schema.FunctionInfo{Function: key}
	return successMsg, nil
}

func (e *Engine) handleUntrackFunction(ctx context.Context, rc *RunCtx, c *query.UntrackFunction) ([]byte, error) {
	key := tableKey(c.Function)
	if _, ok := rc.Cache.Functions[key]; !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotTracked, "function not tracked: %s", key), "function")
	}

	if err := e.tracking.UntrackFunction(ctx, rc.Tx, key.Schema, key.Name); err != nil {
		return nil, err
	}

	delete(rc.Cache.Functions, key)
	return successMsg, nil
}
