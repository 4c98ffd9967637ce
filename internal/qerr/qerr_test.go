package qerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPath(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "empty path",
			err:  New(CodeValidationFailed, "boom"),
			want: "$",
		},
		{
			name: "single field",
			err:  WithField(New(CodeValidationFailed, "boom"), "table"),
			want: "$.table",
		},
		{
			name: "dispatcher scope",
			err:  WithField(WithField(New(CodeNotExists, "no such table"), "table"), "args"),
			want: "$.args.table",
		},
		{
			name: "nested bulk",
			err: WithField(
				WithIndex(
					WithField(
						WithIndex(
							WithField(New(CodeNotTracked, "not tracked"), "table"),
							0),
						"args"),
					1),
				"args"),
			want: "$.args[1].args[0].table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.RenderPath())
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	err := WithField(WithField(New(CodeAlreadyTracked, "view/table already tracked: public.users"), "table"), "args")

	data, merr := json.Marshal(err)
	require.NoError(t, merr)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "$.args.table", got["path"])
	assert.Equal(t, "view/table already tracked: public.users", got["error"])
	assert.Equal(t, "already-tracked", got["code"])
}

func TestFrom(t *testing.T) {
	t.Run("structured error passes through", func(t *testing.T) {
		orig := New(CodePermissionDenied, "nope")
		assert.Same(t, orig, From(orig))
	})

	t.Run("wrapped structured error is recovered", func(t *testing.T) {
		orig := New(CodeNotExists, "gone")
		wrapped := fmt.Errorf("failed to run handler: %w", orig)
		assert.Same(t, orig, From(wrapped))
	})

	t.Run("plain error becomes unexpected", func(t *testing.T) {
		got := From(errors.New("disk on fire"))
		assert.Equal(t, CodeUnexpected, got.Code)
		assert.Equal(t, "disk on fire", got.Msg)
	})
}

func TestWithFieldPreservesIdentity(t *testing.T) {
	orig := Postgres(errors.New("connection refused"))
	got := WithField(orig, "args")

	assert.Equal(t, CodePostgresError, got.Code)
	assert.Equal(t, orig.Msg, got.Msg)
	assert.ErrorIs(t, got, orig.Internal)
	// The original must not be mutated by path accumulation.
	assert.Empty(t, orig.Path)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotTracked, CodeOf(New(CodeNotTracked, "x")))
	assert.Equal(t, CodeUnexpected, CodeOf(errors.New("x")))
}
