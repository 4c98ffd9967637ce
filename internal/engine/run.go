// Package engine is the query dispatch and transactional execution
// core. A decoded command becomes a run computation; peeling the
// computation binds it to a live transaction, a private clone of the
// schema cache and the caller's context, executes it, and either
// commits and hands the mutated cache back or rolls everything back.
package engine

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

// Identity is the already-authenticated caller: a role plus the session
// variables permission rules may reference. Decoding it from the
// transport is someone else's job.
type Identity struct {
	Role        string
	SessionVars map[string]string
}

// RunCtx is the execution context handed to every handler: mutable
// access to the call's cache clone, the read-only caller context, and
// the single open transaction. It lives for exactly one top-level call
// and is shared sequentially across an entire bulk fan-out.
type RunCtx struct {
	// Cache is the call's private clone. Handlers mutate it in place;
	// the mutation becomes visible to subsequent bulk siblings and, on
	// commit, to the caller.
	Cache *schema.Cache

	Identity Identity

	// Client performs outbound HTTP for remote schemas and event
	// trigger delivery.
	Client *http.Client

	// StringifyNumerics makes the data executor render numeric columns
	// as JSON strings to avoid precision loss in clients.
	StringifyNumerics bool

	Tx pgx.Tx

	Logger *logger.Logger
}

// Computation is an unexecuted unit of work. Building one does nothing
// observable; only peeling it runs side effects.
type Computation func(ctx context.Context, rc *RunCtx) ([]byte, error)

// TxBeginner abstracts the pooled connection source so peeling can be
// tested without a live database. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PeelParams bundles everything a computation is bound to when peeled.
type PeelParams struct {
	DB                TxBeginner
	TxOptions         pgx.TxOptions
	Cache             *schema.Cache
	Identity          Identity
	Client            *http.Client
	StringifyNumerics bool
	Logger            *logger.Logger
}

// Peel binds comp to a fresh transaction at the requested isolation
// level and a clone of the given cache snapshot, runs it, and commits.
// On success it returns the response body and the final cache; on any
// failure the transaction is rolled back and no partial cache mutation
// escapes. Exactly one transaction is opened per call.
func Peel(ctx context.Context, p PeelParams, comp Computation) ([]byte, *schema.Cache, error) {
	working := p.Cache.Clone()

	tx, err := p.DB.BeginTx(ctx, p.TxOptions)
	if err != nil {
		return nil, nil, err
	}

	rc := &RunCtx{
		Cache:             working,
		Identity:          p.Identity,
		Client:            p.Client,
		StringifyNumerics: p.StringifyNumerics,
		Tx:                tx,
		Logger:            p.Logger,
	}

	out, err := comp(ctx, rc)
	if err != nil {
		// Rollback failures are secondary to the computation's error.
		_ = tx.Rollback(ctx)
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, err
	}

	return out, rc.Cache, nil
}
