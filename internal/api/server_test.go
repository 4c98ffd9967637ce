package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relgate/relgate/internal/engine"
	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

// deadStore refuses every store operation; enough for requests that
// fail before or without touching the database.
type deadStore struct{}

func (deadStore) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("store unavailable")
}

func (deadStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("store unavailable")
}

func (deadStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("store unavailable")
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logger.New("api-test", "test")
	log.DisableConsoleOutput()

	eng, err := engine.New(engine.Options{
		DB:         deadStore{},
		Logger:     log,
		InstanceID: uuid.New(),
	})
	require.NoError(t, err)

	return NewServer(eng, schema.NewCache(), ":0", log)
}

func TestIdentityFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	r.Header.Set("X-Relgate-Role", "customer")
	r.Header.Set("X-Relgate-User-Id", "42")
	r.Header.Set("Content-Type", "application/json")

	id := identityFrom(r)
	assert.Equal(t, "customer", id.Role)
	assert.Equal(t, "42", id.SessionVars["x-relgate-user-id"])
	assert.Equal(t, "customer", id.SessionVars["x-relgate-role"])
	assert.NotContains(t, id.SessionVars, "content-type")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code qerr.Code
		want int
	}{
		{qerr.CodeParseFailed, http.StatusBadRequest},
		{qerr.CodeValidationFailed, http.StatusBadRequest},
		{qerr.CodeNotExists, http.StatusBadRequest},
		{qerr.CodeAlreadyTracked, http.StatusBadRequest},
		{qerr.CodeNotTracked, http.StatusBadRequest},
		{qerr.CodePermissionDenied, http.StatusForbidden},
		{qerr.CodeRemoteError, http.StatusBadGateway},
		{qerr.CodePostgresError, http.StatusInternalServerError},
		{qerr.CodeUnexpected, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.code))
		})
	}
}

func TestHandleQueryDecodeError(t *testing.T) {
	s := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/query",
		strings.NewReader(`{"type":"explode_table","args":{}}`))
	w := httptest.NewRecorder()
	s.handleQuery(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "$.type", body["path"])
	assert.Equal(t, "parse-failed", body["code"])
}

func TestHandleQueryStoreDown(t *testing.T) {
	s := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/query",
		strings.NewReader(`{"type":"track_table","args":{"table":"users"}}`))
	w := httptest.NewRecorder()
	s.handleQuery(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestCacheInstallation(t *testing.T) {
	s := newTestServer(t)
	orig := s.Cache()

	next := schema.NewCache()
	next.TrackTable(schema.TableKey{Schema: "public", Name: "users"})
	s.installCache(next)

	assert.NotSame(t, orig, s.Cache())
	assert.NotNil(t, s.Cache().Table(schema.TableKey{Schema: "public", Name: "users"}))
}
