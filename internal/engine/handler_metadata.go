package engine

import (
	"context"
	"encoding/json"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

func (e *Engine) handleReplaceMetadata(ctx context.Context, rc *RunCtx, c *query.ReplaceMetadata) ([]byte, error) {
	if len(c.Metadata) == 0 {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "metadata document is required"), "metadata")
	}

	cache, err := e.metadata.Replace(ctx, rc.Tx, c.Metadata)
	if err != nil {
		return nil, qerr.WithField(err, "metadata")
	}

	rc.Cache = cache
	return successMsg, nil
}

func (e *Engine) handleExportMetadata(ctx context.Context, rc *RunCtx, c *query.ExportMetadata) ([]byte, error) {
	out, err := e.metadata.Export(rc.Cache)
	if err != nil {
		return nil, qerr.Wrap(qerr.CodeUnexpected, "failed to export metadata", err)
	}
	return out, nil
}

func (e *Engine) handleClearMetadata(ctx context.Context, rc *RunCtx, c *query.ClearMetadata) ([]byte, error) {
	if err := e.metadata.Clear(ctx, rc.Tx); err != nil {
		return nil, err
	}

	rc.Cache = schema.NewCache()
	return successMsg, nil
}

func (e *Engine) handleReloadMetadata(ctx context.Context, rc *RunCtx, c *query.ReloadMetadata) ([]byte, error) {
	cache, err := e.metadata.Load(ctx, rc.Tx)
	if err != nil {
		return nil, err
	}

	rc.Cache = cache
	return successMsg, nil
}

// handleDumpInternalState renders a summary of the call's cache for
// debugging. It reads only the in-memory state, never the store.
func (e *Engine) handleDumpInternalState(ctx context.Context, rc *RunCtx, c *query.DumpInternalState) ([]byte, error) {
	type tableState struct {
		Table         schema.TableKey `json:"table"`
		Relationships int             `json:"relationships"`
		Permissions   int             `json:"permissions"`
	}
	state := struct {
		InstanceID    string       `json:"instance_id"`
		Tables        []tableState `json:"tables"`
		Functions     int          `json:"functions"`
		RemoteSchemas int          `json:"remote_schemas"`
		EventTriggers int          `json:"event_triggers"`
		Templates     int          `json:"query_templates"`
	}{
		InstanceID:    e.instanceID.String(),
		Tables:        make([]tableState, 0, len(rc.Cache.Tables)),
		Functions:     len(rc.Cache.Functions),
		RemoteSchemas: len(rc.Cache.RemoteSchemas),
		EventTriggers: len(rc.Cache.Triggers),
		Templates:     len(rc.Cache.Templates),
	}
	for k, t := range rc.Cache.Tables {
		state.Tables = append(state.Tables, tableState{
			Table:         k,
			Relationships: len(t.Relationships),
			Permissions:   len(t.Permissions),
		})
	}
	return json.Marshal(state)
}
