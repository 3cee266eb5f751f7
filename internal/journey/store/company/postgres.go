package company

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
	txcontext "jornada/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// settingsJSON is the stored form of CompanySettings, in readable units.
type settingsJSON struct {
	MaxDailyWorkMinutes         int64 `json:"max_daily_work_minutes"`
	MinRestBetweenShiftsMinutes int64 `json:"min_rest_between_shifts_minutes"`
	MaxContinuousWorkMinutes    int64 `json:"max_continuous_work_minutes"`
	RequireLocationOnEvents     bool  `json:"require_location_on_events"`
	ClockSkewToleranceSeconds   int64 `json:"clock_skew_tolerance_seconds"`
}

func encodeSettings(s models.CompanySettings) ([]byte, error) {
	return json.Marshal(settingsJSON{
		MaxDailyWorkMinutes:         int64(s.MaxDailyWork.Minutes()),
		MinRestBetweenShiftsMinutes: int64(s.MinRestBetweenShifts.Minutes()),
		MaxContinuousWorkMinutes:    int64(s.MaxContinuousWork.Minutes()),
		RequireLocationOnEvents:     s.RequireLocationOnEvents,
		ClockSkewToleranceSeconds:   int64(s.ClockSkewTolerance.Seconds()),
	})
}

func decodeSettings(raw []byte) (models.CompanySettings, error) {
	var s settingsJSON
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.CompanySettings{}, err
	}
	return models.CompanySettings{
		MaxDailyWork:            minutes(s.MaxDailyWorkMinutes),
		MinRestBetweenShifts:    minutes(s.MinRestBetweenShiftsMinutes),
		MaxContinuousWork:       minutes(s.MaxContinuousWorkMinutes),
		RequireLocationOnEvents: s.RequireLocationOnEvents,
		ClockSkewTolerance:      seconds(s.ClockSkewToleranceSeconds),
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Company) error {
	settings, drivers, vehicles, err := encodeCompany(c)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO companies (id, name, cnpj, settings, active, drivers, vehicles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID), c.Name, c.Cnpj.Value(), settings, c.Active, drivers, vehicles, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, c *models.Company) error {
	settings, drivers, vehicles, err := encodeCompany(c)
	if err != nil {
		return err
	}
	query := `
		UPDATE companies
		SET name = $2, settings = $3, active = $4, drivers = $5, vehicles = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID), c.Name, settings, c.Active, drivers, vehicles, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update company rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.CompanyID) (*models.Company, error) {
	query := `
		SELECT id, name, cnpj, settings, active, drivers, vehicles, created_at, updated_at
		FROM companies WHERE id = $1
	`
	var (
		c                         models.Company
		companyID                 uuid.UUID
		cnpj                      string
		settings, drivers, vehics []byte
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id)).Scan(
		&companyID, &c.Name, &cnpj, &settings, &c.Active, &drivers, &vehics, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan company: %w", err)
	}
	c.ID = domain.CompanyID(companyID)
	if c.Cnpj, err = domain.ParseCnpj(cnpj); err != nil {
		return nil, fmt.Errorf("stored cnpj: %w", err)
	}
	if c.Settings, err = decodeSettings(settings); err != nil {
		return nil, fmt.Errorf("decode company settings: %w", err)
	}
	if err := json.Unmarshal(drivers, &c.Drivers); err != nil {
		return nil, fmt.Errorf("decode company drivers: %w", err)
	}
	if err := json.Unmarshal(vehics, &c.Vehicles); err != nil {
		return nil, fmt.Errorf("decode company vehicles: %w", err)
	}
	return &c, nil
}

func encodeCompany(c *models.Company) (settings, drivers, vehicles []byte, err error) {
	if settings, err = encodeSettings(c.Settings); err != nil {
		return nil, nil, nil, fmt.Errorf("encode company settings: %w", err)
	}
	driverRefs := c.Drivers
	if driverRefs == nil {
		driverRefs = []models.DriverRef{}
	}
	if drivers, err = json.Marshal(driverRefs); err != nil {
		return nil, nil, nil, fmt.Errorf("encode company drivers: %w", err)
	}
	vehicleRefs := c.Vehicles
	if vehicleRefs == nil {
		vehicleRefs = []models.VehicleRef{}
	}
	if vehicles, err = json.Marshal(vehicleRefs); err != nil {
		return nil, nil, nil, fmt.Errorf("encode company vehicles: %w", err)
	}
	return settings, drivers, vehicles, nil
}

func minutes(n int64) time.Duration { return time.Duration(n) * time.Minute }
func seconds(n int64) time.Duration { return time.Duration(n) * time.Second }
