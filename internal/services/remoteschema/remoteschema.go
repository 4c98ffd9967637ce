// Package remoteschema persists remote schema registrations in the
// engine catalog.
package remoteschema

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/pkg/logger"
)

// Service handles remote-schema catalog operations
type Service struct {
	logger *logger.Logger
}

// NewService creates a new remote schema service
func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// Add inserts a remote schema registration.
func (s *Service) Add(ctx context.Context, tx pgx.Tx, name string, definition json.RawMessage, comment *string) error {
	s.logger.Infof("Adding remote schema: %s", name)

	_, err := tx.Exec(ctx,
		`INSERT INTO relgate_catalog.remote_schemas (name, definition, comment) VALUES ($1, $2, $3)`,
		name, definition, comment)
	if err != nil {
		return qerr.Postgres(err)
	}
	return nil
}

// Remove deletes a remote schema registration.
func (s *Service) Remove(ctx context.Context, tx pgx.Tx, name string) error {
	s.logger.Infof("Removing remote schema: %s", name)

	result, err := tx.Exec(ctx,
		`DELETE FROM relgate_catalog.remote_schemas WHERE name = $1`, name)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "remote schema %q does not exist", name)
	}
	return nil
}
