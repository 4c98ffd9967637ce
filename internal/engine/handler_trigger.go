package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

func (e *Engine) handleCreateEventTrigger(ctx context.Context, rc *RunCtx, c *query.CreateEventTrigger) ([]byte, error) {
	if c.Name == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "event trigger name cannot be empty"), "name")
	}
	info, err := trackedTable(rc, c.Table)
	if err != nil {
		return nil, err
	}
	if _, ok := rc.Cache.Triggers[c.Name]; ok && !c.Replace {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyExists, "event trigger %q already exists", c.Name), "name")
	}
	if c.Webhook == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "webhook url is required"), "webhook")
	}

	if err := e.triggers.Create(ctx, rc.Tx, c.Name, info.Table, c.Webhook, c.Definition, c.Replace); err != nil {
		return nil, err
	}

	rc.Cache.Triggers[c.Name] = &schema.TriggerInfo{
		Name:       c.Name,
		Table:      info.Table,
		Webhook:    c.Webhook,
		Definition: c.Definition,
	}
	return successMsg, nil
}

func (e *Engine) handleDeleteEventTrigger(ctx context.Context, rc *RunCtx, c *query.DeleteEventTrigger) ([]byte, error) {
	if _, ok := rc.Cache.Triggers[c.Name]; !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "event trigger %q does not exist", c.Name), "name")
	}

	if err := e.triggers.Delete(ctx, rc.Tx, c.Name); err != nil {
		return nil, err
	}

	delete(rc.Cache.Triggers, c.Name)
	return successMsg, nil
}

// handleDeliverEvent re-delivers one captured event to its trigger's
// webhook and marks it delivered. Delivery happens inside the call's
// transaction scope so a failed POST leaves the event pending.
func (e *Engine) handleDeliverEvent(ctx context.Context, rc *RunCtx, c *query.DeliverEvent) ([]byte, error) {
	ev, err := e.triggers.FetchEvent(ctx, rc.Tx, c.EventID)
	if err != nil {
		return nil, qerr.WithField(err, "event_id")
	}

	tr, ok := rc.Cache.Triggers[ev.TriggerName]
	if !ok {
		return nil, qerr.Newf(qerr.CodeNotExists, "event trigger %q is no longer tracked", ev.TriggerName)
	}

	rc.Logger.Infof("Delivering event %s to webhook %s", ev.ID, tr.Webhook)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tr.Webhook, bytes.NewReader(ev.Payload))
	if err != nil {
		return nil, qerr.Wrap(qerr.CodeRemoteError, "failed to build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rc.Client.Do(req)
	if err != nil {
		return nil, qerr.Wrap(qerr.CodeRemoteError, fmt.Sprintf("webhook delivery to %q failed", tr.Webhook), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, qerr.Newf(qerr.CodeRemoteError, "webhook %q returned status %d", tr.Webhook, resp.StatusCode)
	}

	if err := e.triggers.MarkDelivered(ctx, rc.Tx, ev.ID); err != nil {
		return nil, err
	}
	return successMsg, nil
}
