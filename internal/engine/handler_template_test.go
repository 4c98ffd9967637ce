package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/query"
)

func TestDecodeTemplate(t *testing.T) {
	t.Run("data operations pass", func(t *testing.T) {
		for _, body := range []string{
			`{"type":"select","args":{"table":"users","columns":["id"]}}`,
			`{"type":"insert","args":{"table":"users","objects":[]}}`,
			`{"type":"count","args":{"table":"users"}}`,
		} {
			cmd, err := decodeTemplate(json.RawMessage(body))
			require.NoError(t, err, body)
			assert.NotNil(t, cmd)
		}
	})

	t.Run("metadata changes are rejected", func(t *testing.T) {
		for _, body := range []string{
			`{"type":"track_table","args":{"table":"users"}}`,
			`{"type":"run_sql","args":{"sql":"DROP TABLE users"}}`,
			`{"type":"bulk","args":[]}`,
		} {
			_, err := decodeTemplate(json.RawMessage(body))
			require.Error(t, err, body)
			assert.Equal(t, qerr.CodeValidationFailed, qerr.CodeOf(err))
		}
	})

	t.Run("malformed body is a parse error", func(t *testing.T) {
		_, err := decodeTemplate(json.RawMessage(`{"type":"wat"}`))
		require.Error(t, err)
		assert.Equal(t, qerr.CodeParseFailed, qerr.CodeOf(err))
	})
}

func TestSubstituteTemplateArgs(t *testing.T) {
	tpl := json.RawMessage(`{"type":"select","args":{"table":"orders","where":{"user_id":"{{user_id}}","total":{"$gt":"{{min_total}}"}}}}`)

	got := substituteTemplateArgs(tpl, map[string]json.RawMessage{
		"user_id":   json.RawMessage(`42`),
		"min_total": json.RawMessage(`99.5`),
	})

	cmd, err := decodeTemplate(got)
	require.NoError(t, err)
	sel, ok := cmd.(*query.Select)
	require.True(t, ok)
	assert.JSONEq(t, `{"user_id":42,"total":{"$gt":99.5}}`, string(sel.Where))
}

func TestSubstituteTemplateArgsLeavesUnknownPlaceholders(t *testing.T) {
	tpl := json.RawMessage(`{"where":{"a":"{{a}}","b":"{{b}}"}}`)
	got := substituteTemplateArgs(tpl, map[string]json.RawMessage{"a": json.RawMessage(`1`)})
	assert.JSONEq(t, `{"where":{"a":1,"b":"{{b}}"}}`, string(got))
}
