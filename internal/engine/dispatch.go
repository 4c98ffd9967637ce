package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

var successMsg = []byte(`{"message":"success"}`)

// Dispatch maps a command to its run computation. The mapping is total
// over the sealed taxonomy: there is no fallback arm, and reaching the
// default case means a variant was added without a dispatch arm, which
// is an internal invariant violation (a package test enumerates every
// variant through here).
//
// All handler failures are reported under the pseudo-path scope "args",
// so a caller can locate the offending field of its original payload.
func (e *Engine) Dispatch(c query.Command) Computation {
	return func(ctx context.Context, rc *RunCtx) ([]byte, error) {
		out, err := e.handle(ctx, rc, c)
		if err != nil {
			return nil, qerr.WithField(err, "args")
		}
		return out, nil
	}
}

func (e *Engine) handle(ctx context.Context, rc *RunCtx, c query.Command) ([]byte, error) {
	switch c := c.(type) {
	case *query.TrackTable:
		return e.handleTrackTable(ctx, rc, c)
	case *query.UntrackTable:
		return e.handleUntrackTable(ctx, rc, c)
	case *query.TrackFunction:
		return e.handleTrackFunction(ctx, rc, c)
	case *query.UntrackFunction:
		return e.handleUntrackFunction(ctx, rc, c)

	case *query.CreateObjectRelationship:
		return e.handleCreateRelationship(ctx, rc, c.Table, c.Name, schema.ObjectRelationship, c.Using, c.Comment)
	case *query.CreateArrayRelationship:
		return e.handleCreateRelationship(ctx, rc, c.Table, c.Name, schema.ArrayRelationship, c.Using, c.Comment)
	case *query.DropRelationship:
		return e.handleDropRelationship(ctx, rc, c)
	case *query.SetRelationshipComment:
		return e.handleSetRelationshipComment(ctx, rc, c)
	case *query.RenameRelationship:
		return e.handleRenameRelationship(ctx, rc, c)

	// The four create/drop permission variants collapse onto shared
	// verb-parameterized handlers.
	case *query.CreateInsertPermission:
		return e.handleCreatePermission(ctx, rc, c.Table, query.VerbInsert, c.PermissionDefinition)
	case *query.CreateSelectPermission:
		return e.handleCreatePermission(ctx, rc, c.Table, query.VerbSelect, c.PermissionDefinition)
	case *query.CreateUpdatePermission:
		return e.handleCreatePermission(ctx, rc, c.Table, query.VerbUpdate, c.PermissionDefinition)
	case *query.CreateDeletePermission:
		return e.handleCreatePermission(ctx, rc, c.Table, query.VerbDelete, c.PermissionDefinition)
	case *query.DropInsertPermission:
		return e.handleDropPermission(ctx, rc, c.Table, query.VerbInsert, c.Role)
	case *query.DropSelectPermission:
		return e.handleDropPermission(ctx, rc, c.Table, query.VerbSelect, c.Role)
	case *query.DropUpdatePermission:
		return e.handleDropPermission(ctx, rc, c.Table, query.VerbUpdate, c.Role)
	case *query.DropDeletePermission:
		return e.handleDropPermission(ctx, rc, c.Table, query.VerbDelete, c.Role)
	case *query.SetPermissionComment:
		return e.handleSetPermissionComment(ctx, rc, c)

	case *query.Insert:
		return e.handleInsert(ctx, rc, c)
	case *query.Select:
		return e.handleSelect(ctx, rc, c)
	case *query.Update:
		return e.handleUpdate(ctx, rc, c)
	case *query.Delete:
		return e.handleDelete(ctx, rc, c)
	case *query.Count:
		return e.handleCount(ctx, rc, c)

	case *query.AddRemoteSchema:
		return e.handleAddRemoteSchema(ctx, rc, c)
	case *query.RemoveRemoteSchema:
		return e.handleRemoveRemoteSchema(ctx, rc, c)

	case *query.CreateEventTrigger:
		return e.handleCreateEventTrigger(ctx, rc, c)
	case *query.DeleteEventTrigger:
		return e.handleDeleteEventTrigger(ctx, rc, c)
	case *query.DeliverEvent:
		return e.handleDeliverEvent(ctx, rc, c)

	case *query.CreateQueryTemplate:
		return e.handleCreateQueryTemplate(ctx, rc, c)
	case *query.DropQueryTemplate:
		return e.handleDropQueryTemplate(ctx, rc, c)
	case *query.ExecuteQueryTemplate:
		return e.handleExecuteQueryTemplate(ctx, rc, c)
	case *query.SetQueryTemplateComment:
		return e.handleSetQueryTemplateComment(ctx, rc, c)

	case *query.RunSQL:
		return e.handleRunSQL(ctx, rc, c)

	case *query.ReplaceMetadata:
		return e.handleReplaceMetadata(ctx, rc, c)
	case *query.ExportMetadata:
		return e.handleExportMetadata(ctx, rc, c)
	case *query.ClearMetadata:
		return e.handleClearMetadata(ctx, rc, c)
	case *query.ReloadMetadata:
		return e.handleReloadMetadata(ctx, rc, c)

	case *query.DumpInternalState:
		return e.handleDumpInternalState(ctx, rc, c)

	case *query.Bulk:
		return e.handleBulk(ctx, rc, c)

	default:
		return nil, qerr.Internal(fmt.Sprintf("no dispatch arm for command %q", c.Tag()))
	}
}

// handleBulk executes the elements strictly in order inside the same
// transaction and against the same threaded cache, short-circuiting on
// the first failure: a failing element aborts the whole batch. Child
// responses are streamed straight into one JSON array in input order
// rather than collected and re-marshaled.
func (e *Engine) handleBulk(ctx context.Context, rc *RunCtx, b *query.Bulk) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, sub := range b.Commands {
		out, err := e.Dispatch(sub)(ctx, rc)
		if err != nil {
			return nil, qerr.WithIndex(err, i)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(out)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
