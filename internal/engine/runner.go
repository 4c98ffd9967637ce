package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/catalog"
	"github.com/relgate/relgate/internal/query"
	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/internal/services/metadata"
	"github.com/relgate/relgate/internal/services/permission"
	"github.com/relgate/relgate/internal/services/relationship"
	"github.com/relgate/relgate/internal/services/remoteschema"
	"github.com/relgate/relgate/internal/services/template"
	"github.com/relgate/relgate/internal/services/tracking"
	"github.com/relgate/relgate/internal/services/trigger"
	"github.com/relgate/relgate/pkg/logger"
)

// SchemaUpdateChannel is the pub/sub channel a best-effort invalidation
// ping is published on after a reload-requiring command commits. The
// durable signal is the event log; the ping only shortens the window
// until other instances poll it.
const SchemaUpdateChannel = "relgate:schema-updates"

// Store is the engine's store surface: begin transactions for peeled
// computations plus direct statements for the post-commit event append.
// *pgxpool.Pool satisfies it.
type Store interface {
	TxBeginner
	catalog.Querier
}

// Notifier broadcasts cache-invalidation pings. *database.Redis
// satisfies it.
type Notifier interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Engine executes decoded commands: one transaction per top-level call,
// a consistent threaded schema cache, and a post-commit schema-update
// event for commands that change the shared catalog.
type Engine struct {
	db         Store
	logger     *logger.Logger
	instanceID uuid.UUID
	isolation  pgx.TxIsoLevel

	stringifyNumerics bool
	client            *http.Client
	notifier          Notifier
	dataExec          DataExecutor

	tracking      *tracking.Service
	relationships *relationship.Service
	permissions   *permission.Service
	remoteSchemas *remoteschema.Service
	triggers      *trigger.Service
	templates     *template.Service
	metadata      *metadata.Service
}

// Options configures a new Engine.
type Options struct {
	DB     Store
	Logger *logger.Logger

	// InstanceID identifies this server process in the schema-update
	// event log. Stable for the process lifetime.
	InstanceID uuid.UUID

	// Isolation is the transaction isolation level every top-level
	// call runs at. Defaults to read committed.
	Isolation pgx.TxIsoLevel

	// StringifyNumerics makes data operations render numeric columns
	// as JSON strings.
	StringifyNumerics bool

	// Client performs outbound HTTP (remote schemas, event delivery).
	Client *http.Client

	// Notifier, when set, receives a ping after each recorded schema
	// update.
	Notifier Notifier

	// DataExecutor plans and runs the plain data operations.
	DataExecutor DataExecutor
}

// New creates an engine. ValidateRegistry runs here so a taxonomy/
// decoder mismatch fails at startup rather than on first request.
func New(opts Options) (*Engine, error) {
	if err := query.ValidateRegistry(); err != nil {
		return nil, err
	}

	if opts.Isolation == "" {
		opts.Isolation = pgx.ReadCommitted
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Engine{
		db:                opts.DB,
		logger:            opts.Logger,
		instanceID:        opts.InstanceID,
		isolation:         opts.Isolation,
		stringifyNumerics: opts.StringifyNumerics,
		client:            opts.Client,
		notifier:          opts.Notifier,
		dataExec:          opts.DataExecutor,
		tracking:          tracking.NewService(opts.Logger),
		relationships:     relationship.NewService(opts.Logger),
		permissions:       permission.NewService(opts.Logger),
		remoteSchemas:     remoteschema.NewService(opts.Logger),
		triggers:          trigger.NewService(opts.Logger),
		templates:         template.NewService(opts.Logger),
		metadata:          metadata.NewService(opts.Logger),
	}, nil
}

// InstanceID returns the engine's event-log provenance id.
func (e *Engine) InstanceID() uuid.UUID {
	return e.instanceID
}

// ExecuteRaw decodes a tagged wire payload and executes it. Decode
// failures happen before any transaction opens.
func (e *Engine) ExecuteRaw(ctx context.Context, payload []byte, cache *schema.Cache, id Identity) ([]byte, *schema.Cache, error) {
	cmd, err := query.Decode(payload)
	if err != nil {
		return nil, nil, err
	}
	return e.Execute(ctx, cmd, cache, id)
}

// Execute runs one decoded command as one unit of work and returns the
// response body plus the cache the caller should install. The main work
// commits first; only then, for reload-requiring commands, is the
// schema-update event appended in a separate short transaction. A
// failed append leaves the committed work durable but the notification
// lost, which is surfaced in the log and never fails the call.
func (e *Engine) Execute(ctx context.Context, cmd query.Command, cache *schema.Cache, id Identity) ([]byte, *schema.Cache, error) {
	out, newCache, err := Peel(ctx, PeelParams{
		DB:                e.db,
		TxOptions:         pgx.TxOptions{IsoLevel: e.isolation},
		Cache:             cache,
		Identity:          id,
		Client:            e.client,
		StringifyNumerics: e.stringifyNumerics,
		Logger:            e.logger,
	}, e.Dispatch(cmd))
	if err != nil {
		return nil, nil, err
	}

	if query.NeedsReload(cmd) {
		if err := catalog.RecordUpdate(ctx, e.db, e.instanceID); err != nil {
			// Accepted consistency gap: other instances may serve a
			// stale cache until their next poll or restart.
			e.logger.Errorf("failed to record schema update event after commit: %v", err)
		} else if e.notifier != nil {
			if err := e.notifier.Publish(ctx, SchemaUpdateChannel, e.instanceID.String()); err != nil {
				e.logger.Warnf("failed to publish schema update ping: %v", err)
			}
		}
	}

	return out, newCache, nil
}

// LastSchemaUpdate exposes the most recent event-log row, if any.
func (e *Engine) LastSchemaUpdate(ctx context.Context) (*catalog.SchemaUpdate, error) {
	return catalog.FetchLastUpdate(ctx, e.db)
}
