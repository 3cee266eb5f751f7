package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"jornada/internal/journey/fsm"
	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
	txcontext "jornada/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore persists drivers and journey events. It also serialises
// mutations per driver: RunInTx opens a transaction and locks the driver row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx runs fn in a transaction holding the driver's row lock, so two
// requests for one driver cannot interleave their read-modify-write.
func (s *PostgresStore) RunInTx(ctx context.Context, driverID domain.DriverID, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		var locked uuid.UUID
		err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
			`SELECT id FROM drivers WHERE id = $1 FOR UPDATE`, uuid.UUID(driverID),
		).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock driver: %w", err)
		}
		return fn(ctx)
	})
}

func (s *PostgresStore) Create(ctx context.Context, d *models.Driver) error {
	query := `
		INSERT INTO drivers (id, company_id, name, cpf, phone, email, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.CompanyID),
		d.Name,
		d.Cpf.Value(),
		d.Phone,
		d.Email,
		d.PasswordHash,
		string(d.Status),
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, d *models.Driver) error {
	query := `
		UPDATE drivers
		SET name = $2, phone = $3, email = $4, password_hash = $5, status = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		d.Name,
		d.Phone,
		d.Email,
		d.PasswordHash,
		string(d.Status),
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update driver: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update driver rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const driverColumns = `id, company_id, name, cpf, phone, email, password_hash, status, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, id domain.DriverID) (*models.Driver, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE id = $1`, uuid.UUID(id))
	d, err := scanDriver(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) FindByCpf(ctx context.Context, companyID domain.CompanyID, cpf domain.Cpf) (*models.Driver, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE company_id = $1 AND cpf = $2`,
		uuid.UUID(companyID), cpf.Value())
	d, err := scanDriver(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// loadEvents reads the whole log. Open events can be arbitrarily old, so the
// aggregate cannot be rebuilt from a time window.
func (s *PostgresStore) loadEvents(ctx context.Context, d *models.Driver) error {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM journey_events WHERE driver_id = $1 ORDER BY started_at`,
		uuid.UUID(d.ID))
	if err != nil {
		return fmt.Errorf("query driver events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate driver events: %w", err)
	}
	d.LoadEvents(events)
	return nil
}

func (s *PostgresStore) SaveEvents(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.ExecutorFrom(ctx, s.db)
		for _, e := range events {
			if _, err := exec.ExecContext(ctx, upsertEvent, eventArgs(e)...); err != nil {
				var pqErr *pq.Error
				if errors.As(err, &pqErr) && pqErr.Code == "23503" {
					return sentinel.ErrNotFound
				}
				return fmt.Errorf("upsert event %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListEvents(ctx context.Context, driverID domain.DriverID, from, to time.Time) ([]models.Event, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM journey_events
		 WHERE driver_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at`,
		uuid.UUID(driverID), from, to)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*models.Driver, error) {
	var (
		d         models.Driver
		id        uuid.UUID
		companyID uuid.UUID
		cpf       string
		status    string
	)
	err := row.Scan(&id, &companyID, &d.Name, &cpf, &d.Phone, &d.Email, &d.PasswordHash, &status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan driver: %w", err)
	}
	d.ID = domain.DriverID(id)
	d.CompanyID = domain.CompanyID(companyID)
	if d.Cpf, err = domain.ParseCpf(cpf); err != nil {
		return nil, fmt.Errorf("stored cpf: %w", err)
	}
	if d.Status, err = models.ParseDriverStatus(status); err != nil {
		return nil, fmt.Errorf("stored status: %w", err)
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const eventColumns = `id, driver_id, company_id, vehicle_id, type, started_at, ended_at,
	start_latitude, start_longitude, start_accuracy, end_latitude, end_longitude, end_accuracy,
	source, device_time_skew_ms, edited_by, edit_reason, created_at, updated_at`

const upsertEvent = `
	INSERT INTO journey_events (` + eventColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (id) DO UPDATE SET
		started_at = EXCLUDED.started_at,
		ended_at = EXCLUDED.ended_at,
		start_latitude = EXCLUDED.start_latitude,
		start_longitude = EXCLUDED.start_longitude,
		start_accuracy = EXCLUDED.start_accuracy,
		end_latitude = EXCLUDED.end_latitude,
		end_longitude = EXCLUDED.end_longitude,
		end_accuracy = EXCLUDED.end_accuracy,
		edited_by = EXCLUDED.edited_by,
		edit_reason = EXCLUDED.edit_reason,
		updated_at = EXCLUDED.updated_at
`

func eventArgs(e *models.Event) []any {
	var vehicleID, editedBy *uuid.UUID
	if e.VehicleID != nil {
		v := uuid.UUID(*e.VehicleID)
		vehicleID = &v
	}
	if e.EditedBy != nil {
		u := uuid.UUID(*e.EditedBy)
		editedBy = &u
	}
	var skewMs sql.NullInt64
	if e.DeviceTimeSkew != nil {
		skewMs = sql.NullInt64{Int64: e.DeviceTimeSkew.Milliseconds(), Valid: true}
	}
	startLat, startLng, startAcc := locationArgs(e.LocationStart)
	endLat, endLng, endAcc := locationArgs(e.LocationEnd)
	return []any{
		uuid.UUID(e.ID),
		uuid.UUID(e.DriverID),
		uuid.UUID(e.CompanyID),
		vehicleID,
		e.Type.String(),
		e.StartedAt,
		e.EndedAt,
		startLat, startLng, startAcc,
		endLat, endLng, endAcc,
		string(e.Source),
		skewMs,
		editedBy,
		e.EditReason,
		e.CreatedAt,
		e.UpdatedAt,
	}
}

func locationArgs(l *domain.Location) (sql.NullFloat64, sql.NullFloat64, sql.NullInt32) {
	if l == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}, sql.NullInt32{}
	}
	return sql.NullFloat64{Float64: l.Latitude(), Valid: true},
		sql.NullFloat64{Float64: l.Longitude(), Valid: true},
		sql.NullInt32{Int32: int32(l.AccuracyMeters()), Valid: true}
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e                       models.Event
		id, driverID, companyID uuid.UUID
		vehicleID, editedBy     *uuid.UUID
		eventType, source       string
		endedAt                 sql.NullTime
		startLat, startLng      sql.NullFloat64
		endLat, endLng          sql.NullFloat64
		startAcc, endAcc        sql.NullInt32
		skewMs                  sql.NullInt64
	)
	err := row.Scan(
		&id, &driverID, &companyID, &vehicleID, &eventType, &e.StartedAt, &endedAt,
		&startLat, &startLng, &startAcc, &endLat, &endLng, &endAcc,
		&source, &skewMs, &editedBy, &e.EditReason, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.ID = domain.EventID(id)
	e.DriverID = domain.DriverID(driverID)
	e.CompanyID = domain.CompanyID(companyID)
	if e.Type, err = fsm.ParseEventType(eventType); err != nil {
		return nil, fmt.Errorf("stored event type: %w", err)
	}
	e.Source = models.EventSource(source)
	e.StartedAt = e.StartedAt.UTC()
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		e.EndedAt = &t
	}
	if vehicleID != nil {
		v := domain.VehicleID(*vehicleID)
		e.VehicleID = &v
	}
	if editedBy != nil {
		u := domain.UserID(*editedBy)
		e.EditedBy = &u
	}
	if skewMs.Valid {
		d := time.Duration(skewMs.Int64) * time.Millisecond
		e.DeviceTimeSkew = &d
	}
	if e.LocationStart, err = scanLocation(startLat, startLng, startAcc); err != nil {
		return nil, err
	}
	if e.LocationEnd, err = scanLocation(endLat, endLng, endAcc); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanLocation(lat, lng sql.NullFloat64, acc sql.NullInt32) (*domain.Location, error) {
	if !lat.Valid || !lng.Valid {
		return nil, nil
	}
	loc, err := domain.NewLocation(lat.Float64, lng.Float64, int(acc.Int32))
	if err != nil {
		return nil, fmt.Errorf("stored location: %w", err)
	}
	return &loc, nil
}
