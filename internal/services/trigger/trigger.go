// Package trigger persists event triggers and their pending event log
// in the engine catalog.
package trigger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/relgate/relgate/internal/qerr"
	"github.com/relgate/relgate/internal/schema"
	"github.com/relgate/relgate/pkg/logger"
)

// Service handles event-trigger catalog operations
type Service struct {
	logger *logger.Logger
}

// NewService creates a new trigger service
func NewService(logger *logger.Logger) *Service {
	return &Service{logger: logger}
}

// Event is one captured row event awaiting (re)delivery.
type Event struct {
	ID          string
	TriggerName string
	Payload     json.RawMessage
	Delivered   bool
}

// Create inserts an event trigger, optionally replacing an existing
// trigger of the same name.
func (s *Service) Create(ctx context.Context, tx pgx.Tx, name string, table schema.TableKey, webhook string, definition json.RawMessage, replace bool) error {
	s.logger.Infof("Creating event trigger %s on table %s, webhook: %s", name, table, webhook)

	if replace {
		_, err := tx.Exec(ctx,
			`DELETE FROM relgate_catalog.event_triggers WHERE name = $1`, name)
		if err != nil {
			return qerr.Postgres(err)
		}
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO relgate_catalog.event_triggers (name, table_schema, table_name, webhook, definition)
		 VALUES ($1, $2, $3, $4, $5)`,
		name, table.Schema, table.Name, webhook, definition)
	if err != nil {
		return qerr.Postgres(err)
	}
	return nil
}

// Delete removes an event trigger.
func (s *Service) Delete(ctx context.Context, tx pgx.Tx, name string) error {
	s.logger.Infof("Deleting event trigger: %s", name)

	result, err := tx.Exec(ctx,
		`DELETE FROM relgate_catalog.event_triggers WHERE name = $1`, name)
	if err != nil {
		return qerr.Postgres(err)
	}
	if result.RowsAffected() == 0 {
		return qerr.Newf(qerr.CodeNotExists, "event trigger %q does not exist", name)
	}
	return nil
}

// FetchEvent loads one captured event by id.
func (s *Service) FetchEvent(ctx context.Context, tx pgx.Tx, eventID string) (*Event, error) {
	var ev Event
	err := tx.QueryRow(ctx,
		`SELECT event_id, trigger_name, payload, delivered
		 FROM relgate_catalog.event_log WHERE event_id = $1`,
		eventID).Scan(&ev.ID, &ev.TriggerName, &ev.Payload, &ev.Delivered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, qerr.Newf(qerr.CodeNotExists, "event %q does not exist", eventID)
		}
		return nil, qerr.Postgres(err)
	}
	return &ev, nil
}

// MarkDelivered flags an event as delivered.
func (s *Service) MarkDelivered(ctx context.Context, tx pgx.Tx, eventID string) error {
	s.logger.Infof("Marking event delivered: %s", eventID)

	if _, err := tx.Exec(ctx,
		`UPDATE relgate_catalog.event_log SET delivered = TRUE WHERE event_id = $1`,
		eventID); err != nil {
		return qerr.Postgres(err)
	}
	return nil
}
