package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

func (e *Engine) handleAddRemoteSchema(ctx context.Context, rc *RunCtx, c *query.AddRemoteSchema) ([]byte, error) {
	if c.Name == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "remote schema name cannot be empty"), "name")
	}
	if _, ok := rc.Cache.RemoteSchemas[c.Name]; ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyExists, "remote schema %q already exists", c.Name), "name")
	}
	if _, err := url.ParseRequestURI(c.Definition.URL); err != nil {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeValidationFailed, "invalid remote schema url %q", c.Definition.URL), "definition")
	}

	// Probe the remote before registering it, with the definition's
	// own timeout bounding the round trip.
	if err := e.probeRemote(ctx, rc, c.Definition); err != nil {
		return nil, qerr.WithField(err, "definition")
	}

	raw, err := json.Marshal(c.Definition)
	if err != nil {
		return nil, qerr.Wrap(qerr.CodeUnexpected, "failed to encode remote schema definition", err)
	}

	if err := e.remoteSchemas.Add(ctx, rc.Tx, c.Name, raw, c.Comment); err != nil {
		return nil, err
	}

	rc.Cache.RemoteSchemas[c.Name] = &schema.RemoteSchemaInfo{
		Name:    c.Name,
		URL:     c.Definition.URL,
		Raw:     raw,
		Comment: c.Comment,
	}
	return successMsg, nil
}

func (e *Engine) probeRemote(ctx context.Context, rc *RunCtx, def query.RemoteSchemaDefinition) error {
	if def.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(def.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, def.URL, nil)
	if err != nil {
		return qerr.Wrap(qerr.CodeRemoteError, "failed to build remote schema request", err)
	}
	for k, v := range def.Headers {
		req.Header.Set(k, v)
	}

	resp, err := rc.Client.Do(req)
	if err != nil {
		return qerr.Wrap(qerr.CodeRemoteError, "remote schema is unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return qerr.Newf(qerr.CodeRemoteError, "remote schema returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *Engine) handleRemoveRemoteSchema(ctx context.Context, rc *RunCtx, c *query.RemoveRemoteSchema) ([]byte, error) {
	if _, ok := rc.Cache.RemoteSchemas[c.Name]; !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "remote schema %q does not exist", c.Name), "name")
	}

	if err := e.remoteSchemas.Remove(ctx, rc.Tx, c.Name); err != nil {
		return nil, err
	}

	delete(rc.Cache.RemoteSchemas, c.Name)
	return successMsg, nil
}
