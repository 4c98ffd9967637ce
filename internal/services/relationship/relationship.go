// Package relationship persists tracked-table relationships in the
// engine catalog.
package relationship

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

// Service handles relationship-related catalog operations
type Service struct {
	logger *logger.Logger
}

// NewService creates a new relationship service
func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// Create inserts a relationship row for a tracked table.
func (s *Service) Create(ctx context.Context, tx pgx.Tx, table schema.TableKey, name string, kind schema.RelationshipKind, using json.RawMessage, comment *string) error {
	s.logger.Infof("Creating %s relationship %s on table %s", kind, name, table)

	_, err := tx.Exec(ctx,
		`INSERT INTO relgate_catalog.relationships (table_schema, table_name, rel_name, rel_kind, rel_def, comment)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		table.Schema, table.Name, name, string(kind), using, comment)
	if err != nil {
		return qerr.Postgres(err)
	}
	return nil
}

// Drop deletes a relationship row.
func (s *Service) Drop(ctx context.Context, tx pgx.Tx, table schema.TableKey, name string) error {
	s.logger.Infof("Dropping relationship %s on table %s", name, table)

	result, err := tx.Exec(ctx,
		`DELETE FROM relgate_catalog.relationships
		 WHERE table_schema = $1 AND table_name = $2 AND rel_name = $3`,
		table.Schema, table.Name, name)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "relationship %q does not exist on table %s", name, table)
	}
	return nil
}

// Rename changes a relationship's name.
func (s *Service) Rename(ctx context.Context, tx pgx.Tx, table schema.TableKey, name, newName string) error {
	s.logger.Infof("Renaming relationship %s to %s on table %s", name, newName, table)

	result, err := tx.Exec(ctx,
		`UPDATE relgate_catalog.relationships SET rel_name = $4
		 WHERE table_schema = $1 AND table_name = $2 AND rel_name = $3`,
		table.Schema, table.Name, name, newName)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "relationship %q does not exist on table %s", name, table)
	}
	return nil
}

// SetComment updates a relationship's comment.
func (s *Service) SetComment(ctx context.Context, tx pgx.Tx, table schema.TableKey, name string, comment *string) error {
	s.logger.Infof("Setting comment on relationship %s of table %s", name, table)

	result, err := tx.Exec(ctx,
		`UPDATE relgate_catalog.relationships SET comment = $4
		 WHERE table_schema = $1 AND table_name = $2 AND rel_name = $3`,
		table.Schema, table.Name, name, comment)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "relationship %q does not exist on table %s", name, table)
	}
	return nil
}
