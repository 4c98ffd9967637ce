// Package template persists named query templates in the engine
// catalog.
package template

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/pkg/logger"
)

// Service handles query-template catalog operations
type Service struct {
	logger *logger.Logger
}

// NewService creates a new template service
func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// Create inserts a query template.
func (s *Service) Create(ctx context.Context, tx pgx.Tx, name string, tpl json.RawMessage, comment *string) error {
	s.logger.Infof("Creating query template: %s", name)

	_, err := tx.Exec(ctx,
		`INSERT INTO relgate_catalog.query_templates (name, template, comment) VALUES ($1, $2, $3)`,
		name, tpl, comment)
	if err != nil {
		return qerr.Postgres(err)
	}
	return nil
}

// Drop deletes a query template.
func (s *Service) Drop(ctx context.Context, tx pgx.Tx, name string) error {
	s.logger.Infof("Dropping query template: %s", name)

	result, err := tx.Exec(ctx,
		`DELETE FROM relgate_catalog.query_templates WHERE name = $1`, name)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "query template %q does not exist", name)
	}
	return nil
}

// SetComment updates a query template's comment.
func (s *Service) SetComment(ctx context.Context, tx pgx.Tx, name string, comment *string) error {
	s.logger.Infof("Setting comment on query template: %s", name)

	result, err := tx.Exec(ctx,
		`UPDATE relgate_catalog.query_templates SET comment = $2 WHERE name = $1`,
		name, comment)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "query template %q does not exist", name)
	}
	return nil
}
