// Package api exposes the engine over HTTP: a single JSON command
// endpoint plus health and introspection routes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/relgate/relgate/internal/engine"
	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

const (
	roleHeader       = "X-Relgate-Role"
	sessionVarPrefix = "x-relgate-"

	maxBodyBytes = 10 << 20
)

// Server serializes command execution: one call holds the execution
// lock at a time, and the cache an execution hands back is installed
// before the lock is released. Readers of the current cache never block
// behind an in-flight command.
type Server struct {
	engine *engine.Engine
	logger *logger.Logger

	httpServer *http.Server

	mu    sync.Mutex // execution lock
	cache *schema.Cache

	cacheMu sync.RWMutex // guards the installed cache pointer
}

// NewServer creates a server around an engine and its initial cache.
func NewServer(eng *engine.Engine, cache *schema.Cache, addr string, logger *logger.Logger) *Server {
	s := &Server{
		engine: eng,
		logger: logger,
		cache:  cache,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/v1/query", s.handleQuery).Methods("POST")
	router.HandleFunc("/v1/schema-update", s.handleLastUpdate).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Cache returns the currently installed schema cache snapshot.
func (s *Server) Cache() *schema.Cache {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache
}

func (s *Server) installCache(c *schema.Cache) {
	s.cacheMu.Lock()
	s.cache = c
	s.cacheMu.Unlock()
}

// identityFrom builds the caller identity from request headers. Every
// X-Relgate-* header becomes a session variable under its lowercased
// name, matching what permission rules reference.
func identityFrom(r *http.Request) engine.Identity {
	id := engine.Identity{
		Role:        r.Header.Get(roleHeader),
		SessionVars: make(map[string]string),
	}
	for name, vals := range r.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, sessionVarPrefix) && len(vals) > 0 {
			id.SessionVars[lower] = vals[0]
		}
	}
	return id
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, qerr.Wrap(qerr.CodeParseFailed, "failed to read request body", err))
		return
	}

	// One command at a time. The lock also covers installing the
	// returned cache, so the next command always starts from the
	// previous command's committed view. It holds for the whole
	// execution, outbound webhook and remote schema calls included,
	// so a slow remote delays every queued command.
	s.mu.Lock()
	defer s.mu.Unlock()

	out, newCache, err := s.engine.ExecuteRaw(r.Context(), body, s.Cache(), identityFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.installCache(newCache)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleLastUpdate(w http.ResponseWriter, r *http.Request) {
	update, err := s.engine.LastSchemaUpdate(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if update == nil {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"last_update": nil})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"last_update": map[string]string{
			"instance_id": update.InstanceID.String(),
			"occurred_at": update.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	})
}

// statusFor maps an error code to an HTTP status. Caller mistakes are
// 400s; authorization failures 403; backend trouble 500s.
func statusFor(code qerr.Code) int {
	switch code {
	case qerr.CodeParseFailed, qerr.CodeValidationFailed,
		qerr.CodeNotExists, qerr.CodeAlreadyExists,
		qerr.CodeAlreadyTracked, qerr.CodeNotTracked:
		return http.StatusBadRequest
	case qerr.CodePermissionDenied:
		return http.StatusForbidden
	case qerr.CodeRemoteError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	qe := qerr.From(err)
	status := statusFor(qe.Code)
	if status >= 500 {
		s.logger.Errorf("request failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(qe)
}
