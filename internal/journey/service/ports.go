package service

import (
	"context"
	"time"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	audit "jornada/pkg/platform/audit"
)

// DriverStore persists drivers and their event logs. Stores return
// sentinel.ErrNotFound and sentinel.ErrConflict; the service maps them.
type DriverStore interface {
	Create(ctx context.Context, driver *models.Driver) error
	Update(ctx context.Context, driver *models.Driver) error
	// FindByID returns the driver with its event log loaded.
	FindByID(ctx context.Context, id domain.DriverID) (*models.Driver, error)
	FindByCpf(ctx context.Context, companyID domain.CompanyID, cpf domain.Cpf) (*models.Driver, error)
	// SaveEvents upserts events by ID.
	SaveEvents(ctx context.Context, events []*models.Event) error
	// ListEvents returns the driver's events starting in [from, to).
	ListEvents(ctx context.Context, driverID domain.DriverID, from, to time.Time) ([]models.Event, error)
}

type CompanyStore interface {
	Create(ctx context.Context, company *models.Company) error
	FindByID(ctx context.Context, id domain.CompanyID) (*models.Company, error)
	Update(ctx context.Context, company *models.Company) error
}

// SummaryStore keeps the last calculated summary per driver and day.
type SummaryStore interface {
	Save(ctx context.Context, summary *models.WorkdaySummary) error
	Find(ctx context.Context, driverID domain.DriverID, date string) (*models.WorkdaySummary, error)
}

// SummaryCache is a best-effort read cache; errors are logged, never returned.
type SummaryCache interface {
	Get(ctx context.Context, driverID domain.DriverID, date string) (*models.WorkdaySummary, error)
	Set(ctx context.Context, summary *models.WorkdaySummary) error
	Invalidate(ctx context.Context, driverID domain.DriverID, dates ...string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DriverTx serialises mutations of one driver. fn runs while no other
// mutation of the same driver is in flight.
type DriverTx interface {
	RunInTx(ctx context.Context, driverID domain.DriverID, fn func(ctx context.Context) error) error
}
