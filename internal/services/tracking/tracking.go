// Package tracking persists table and function tracking state in the
// engine catalog.
package tracking

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/pkg/logger"
)

// Service handles tracking-related catalog operations
type Service struct {
	logger *logger.Logger
}

// NewService creates a new tracking service
func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// TrackTable verifies the table exists in postgres and records it as
// tracked.
func (s *Service) TrackTable(ctx context.Context, tx pgx.Tx, schemaName, tableName string) error {
	s.logger.Infof("Tracking table in catalog: %s.%s", schemaName, tableName)

	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2)`,
		schemaName, tableName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check table existence: %w", err)
	}
	if !exists {
		return qerr.Newf(qerr.CodeNotExists, "no such table/view exists in postgres: %s.%s", schemaName, tableName)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO relgate_catalog.tracked_tables (schema_name, table_name) VALUES ($1, $2)`,
		schemaName, tableName)
	if err != nil {
		return qerr.Postgres(err)
	}
	return nil
}

// UntrackTable removes a tracked table; relationships, permissions and
// event triggers hanging off it go with it via cascading deletes.
func (s *Service) UntrackTable(ctx context.Context, tx pgx.Tx, schemaName, tableName string) error {
	s.logger.Infof("Untracking table in catalog: %s.%s", schemaName, tableName)

	result, err := tx.Exec(ctx,
		`DELETE FROM relgate_catalog.tracked_tables WHERE schema_name = $1 AND table_name = $2`,
		schemaName, tableName)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotTracked, "table not tracked: %s.%s", schemaName, tableName)
	}
	return nil
}

// TrackFunction verifies the function exists in postgres and records it
// as tracked.
func (s *Service) TrackFunction(ctx context.Context, tx pgx.Tx, schemaName, functionName string) error {
	s.logger.Infof("Tracking function in catalog: %s.%s", schemaName, functionName)

	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM information_schema.routines
			WHERE routine_schema = $1 AND routine_name = $2)`,
		schemaName, functionName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check function existence: %w", err)
	}
	if !exists {
		return qerr.Newf(qerr.CodeNotExists, "no such function exists in postgres: %s.%s", schemaName, functionName)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO relgate_catalog.tracked_functions (schema_name, function_name) VALUES ($1, $2)`,
		schemaName, functionName)
	if err != nil {
		return qerr.Postgres(err)
	}
	return nil
}

// UntrackFunction removes a tracked function.
func (s *Service) UntrackFunction(ctx context.Context, tx pgx.Tx, schemaName, functionName string) error {
	s.logger.Infof("Untracking function in catalog: %s.%s", schemaName, functionName)

	result, err := tx.Exec(ctx,
		`DELETE FROM relgate_catalog.tracked_functions WHERE schema_name = $1 AND function_name = $2`,
		schemaName, functionName)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotTracked, "function not tracked: %s.%s", schemaName, functionName)
	}
	return nil
}
