package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"jornada/pkg/domain"
	audit "jornada/pkg/platform/audit"
	txcontext "jornada/pkg/platform/tx"
)

// Schema creates the audit_events table.
//
//go:embed schema.sql
var Schema string

// Store implements audit.Store on the audit_events table. Appends join the
// caller's transaction when one is in context, so a journey write and its
// audit trail commit together.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append is idempotent on event ID.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	if event.ID != "" {
		parsed, err := uuid.Parse(event.ID)
		if err != nil {
			return fmt.Errorf("audit event id %q: %w", event.ID, err)
		}
		eventID = parsed
	}
	details := event.Details
	if details == nil {
		details = map[string]string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var driverID *uuid.UUID
	if !event.DriverID.IsNil() {
		id := uuid.UUID(event.DriverID)
		driverID = &id
	}

	query := `
		INSERT INTO audit_events (
			id, category, action, timestamp, driver_id, company_id,
			actor_id, subject, reason, request_id, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		eventID,
		string(event.Action.Category()),
		string(event.Action),
		event.Timestamp,
		driverID,
		event.CompanyID,
		event.ActorID,
		event.Subject,
		event.Reason,
		event.RequestID,
		detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByDriver returns a driver's trail, newest first.
func (s *Store) ListByDriver(ctx context.Context, driverID domain.DriverID) ([]audit.Event, error) {
	query := `
		SELECT id, category, action, timestamp, driver_id, company_id,
			   actor_id, subject, reason, request_id, details
		FROM audit_events
		WHERE driver_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(driverID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events across all drivers.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, action, timestamp, driver_id, company_id,
			   actor_id, subject, reason, request_id, details
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event       audit.Event
			eventID     uuid.UUID
			category    string
			action      string
			driverID    *uuid.UUID
			detailsJSON []byte
		)
		err := rows.Scan(
			&eventID,
			&category,
			&action,
			&event.Timestamp,
			&driverID,
			&event.CompanyID,
			&event.ActorID,
			&event.Subject,
			&event.Reason,
			&event.RequestID,
			&detailsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = eventID.String()
		event.Category = audit.EventCategory(category)
		event.Action = audit.Action(action)
		if driverID != nil {
			event.DriverID = domain.DriverID(*driverID)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
			if len(event.Details) == 0 {
				event.Details = nil
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
