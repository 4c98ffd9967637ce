// Package permission persists per-role, per-verb permission rules in
// the engine catalog.
package permission

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

// Service handles permission-related catalog operations
type Service struct {
	logger *logger.Logger
}

// NewService creates a new permission service
func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// Create inserts a permission rule for a role and verb on a tracked
// table.
func (s *Service) Create(ctx context.Context, tx pgx.Tx, table schema.TableKey, role, verb string, definition json.RawMessage, comment *string) error {
	s.logger.Infof("Creating %s permission for role %s on table %s", verb, role, table)

	_, err := tx.Exec(ctx,
		`INSERT INTO relgate_catalog.permissions (table_schema, table_name, role_name, perm_verb, perm_def, comment)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		table.Schema, table.Name, role, verb, definition, comment)
	if err != nil {
		return qerr.Postgres(err)
	}
	return nil
}

// Drop deletes a permission rule.
func (s *Service) Drop(ctx context.Context, tx pgx.Tx, table schema.TableKey, role, verb string) error {
	s.logger.Infof("Dropping %s permission for role %s on table %s", verb, role, table)

	result, err := tx.Exec(ctx,
		`DELETE FROM relgate_catalog.permissions
		 WHERE table_schema = $1 AND table_name = $2 AND role_name = $3 AND perm_verb = $4`,
		table.Schema, table.Name, role, verb)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "%s permission for role %q does not exist on table %s", verb, role, table)
	}
	return nil
}

// SetComment updates a permission rule's comment.
func (s *Service) SetComment(ctx context.Context, tx pgx.Tx, table schema.TableKey, role, verb string, comment *string) error {
	s.logger.Infof("Setting comment on %s permission for role %s on table %s", verb, role, table)

	result, err := tx.Exec(ctx,
		`UPDATE relgate_catalog.permissions SET comment = $5
		 WHERE table_schema = $1 AND table_name = $2 AND role_name = $3 AND perm_verb = $4`,
		table.Schema, table.Name, role, verb, comment)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "%s permission for role %q does not exist on table %s", verb, role, table)
	}
	return nil
}
