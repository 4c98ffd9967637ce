package engine

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
)

func (e *Engine) handleCreateQueryTemplate(ctx context.Context, rc *RunCtx, c *query.CreateQueryTemplate) ([]byte, error) {
	if c.Name == "" {
		return nil, qerr.WithField(qerr.New(qerr.CodeValidationFailed, "template name cannot be empty"), "name")
	}
	if _, ok := rc.Cache.Templates[c.Name]; ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeAlreadyExists, "query template %q already exists", c.Name), "name")
	}

	// The template body must itself be a well-formed data operation.
	if _, err := decodeTemplate(c.Template); err != nil {
		return nil, qerr.WithField(err, "template")
	}

	if err := e.templates.Create(ctx, rc.Tx, c.Name, c.Template, c.Comment); err != nil {
		return nil, err
	}

	rc.Cache.Templates[c.Name] = &schema.TemplateInfo{Name: c.Name, Template: c.Template, Comment: c.Comment}
	return successMsg, nil
}

func (e *Engine) handleDropQueryTemplate(ctx context.Context, rc *RunCtx, c *query.DropQueryTemplate) ([]byte, error) {
	if _, ok := rc.Cache.Templates[c.Name]; !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "query template %q does not exist", c.Name), "name")
	}

	if err := e.templates.Drop(ctx, rc.Tx, c.Name); err != nil {
		return nil, err
	}

	delete(rc.Cache.Templates, c.Name)
	return successMsg, nil
}

// handleExecuteQueryTemplate substitutes the call's arguments into the
// stored template and runs the resulting data operation through the
// dispatcher, inside the same transaction and cache.
func (e *Engine) handleExecuteQueryTemplate(ctx context.Context, rc *RunCtx, c *query.ExecuteQueryTemplate) ([]byte, error) {
	tpl, ok := rc.Cache.Templates[c.Name]
	if !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "query template %q does not exist", c.Name), "name")
	}

	body := substituteTemplateArgs(tpl.Template, c.Args)
	cmd, err := decodeTemplate(body)
	if err != nil {
		return nil, qerr.WithField(err, "args")
	}

	return e.handle(ctx, rc, cmd)
}

func (e *Engine) handleSetQueryTemplateComment(ctx context.Context, rc *RunCtx, c *query.SetQueryTemplateComment) ([]byte, error) {
	tpl, ok := rc.Cache.Templates[c.Name]
	if !ok {
		return nil, qerr.WithField(qerr.Newf(qerr.CodeNotExists, "query template %q does not exist", c.Name), "name")
	}

	if err := e.templates.SetComment(ctx, rc.Tx, c.Name, c.Comment); err != nil {
		return nil, err
	}

	tpl.Comment = c.Comment
	return successMsg, nil
}

// decodeTemplate parses a template body and restricts it to the plain
// data operations; templated metadata changes would silently bypass the
// reload policy.
func decodeTemplate(body json.RawMessage) (query.Command, error) {
	cmd, err := query.Decode(body)
	if err != nil {
		return nil, err
	}
	switch cmd.(type) {
	case *query.Insert, *query.Select, *query.Update, *query.Delete, *query.Count:
		return cmd, nil
	default:
		return nil, qerr.Newf(qerr.CodeValidationFailed, "query templates may only contain data operations, not %q", cmd.Tag())
	}
}

// substituteTemplateArgs replaces {{name}} placeholders in the template
// body with the JSON-encoded argument values.
func substituteTemplateArgs(tpl json.RawMessage, args map[string]json.RawMessage) json.RawMessage {
	out := []byte(tpl)
	for name, val := range args {
		out = bytes.ReplaceAll(out, []byte(`"{{`+name+`}}"`), val)
	}
	return out
}
