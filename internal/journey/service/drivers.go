package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"jornada/internal/journey/fsm"
	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
	audit "jornada/pkg/platform/audit"
	"jornada/pkg/platform/sentinel"
	"jornada/pkg/requestcontext"
	"jornada/pkg/secrets"
)

type RegisterDriverCommand struct {
	CompanyID domain.CompanyID
	Name      string
	Cpf       string
	Phone     string
	Email     string
	// Password is optional; a temporary one is generated when empty.
	Password string
}

// RegisterDriverResult carries the temporary password, which is only
// available at registration time.
type RegisterDriverResult struct {
	Driver            *models.Driver
	TemporaryPassword string
}

// StateView is what the mobile app needs to render its buttons.
type StateView struct {
	DriverID domain.DriverID `json:"driver_id"`
	State    fsm.DriverState `json:"state"`
	Allowed  []fsm.EventType `json:"allowed_events"`
	Active   []models.Event  `json:"active_events"`
}

func (s *Service) RegisterDriver(ctx context.Context, cmd RegisterDriverCommand) (*RegisterDriverResult, error) {
	ctx, span := s.tracer.Start(ctx, "journey.RegisterDriver")
	defer span.End()

	cpf, err := domain.ParseCpf(cmd.Cpf)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	company, err := s.companies.FindByID(ctx, cmd.CompanyID)
	if err != nil {
		return nil, recordSpanError(span, translateStoreError(err, "company"))
	}

	now := s.clock()
	driver, err := models.NewDriver(domain.NewDriverID(), company.ID, cmd.Name, cpf, cmd.Phone, cmd.Email, now)
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	password := cmd.Password
	temporary := ""
	if password == "" {
		if password, err = secrets.Generate(); err != nil {
			return nil, recordSpanError(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate password"))
		}
		temporary = password
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if err := driver.SetPassword(hash, now); err != nil {
		return nil, recordSpanError(span, err)
	}
	if err := company.AddDriver(driver, now); err != nil {
		return nil, recordSpanError(span, err)
	}

	if err := s.drivers.Create(ctx, driver); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, recordSpanError(span, dErrors.New(dErrors.CodeConflict, "driver cpf already registered for company"))
		}
		return nil, recordSpanError(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create driver"))
	}
	if err := s.companies.Update(ctx, company); err != nil {
		return nil, recordSpanError(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update company"))
	}
	span.SetAttributes(attribute.String("driver_id", driver.ID.String()))

	s.emitAudit(ctx, audit.Event{
		Action:    audit.ActionDriverRegistered,
		Timestamp: now,
		DriverID:  driver.ID,
		CompanyID: company.ID.String(),
		Subject:   driver.ID.String(),
		RequestID: requestcontext.RequestID(ctx),
		Details:   map[string]string{"cpf": cpf.Formatted()},
	})
	s.log().InfoContext(ctx, "driver registered",
		"driver_id", driver.ID,
		"company_id", company.ID,
	)
	return &RegisterDriverResult{Driver: driver, TemporaryPassword: temporary}, nil
}

// GetDriver returns the driver with its event log.
func (s *Service) GetDriver(ctx context.Context, driverID domain.DriverID) (*models.Driver, error) {
	driver, err := s.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, translateStoreError(err, "driver")
	}
	return driver, nil
}

func (s *Service) ChangeDriverStatus(ctx context.Context, driverID domain.DriverID, status models.DriverStatus, reason string) (*models.Driver, error) {
	ctx, span := s.tracer.Start(ctx, "journey.ChangeDriverStatus")
	defer span.End()
	span.SetAttributes(attribute.String("driver_id", driverID.String()))

	var (
		driver   *models.Driver
		previous models.DriverStatus
	)
	now := s.clock()
	err := s.tx.RunInTx(ctx, driverID, func(ctx context.Context) error {
		var err error
		driver, err = s.drivers.FindByID(ctx, driverID)
		if err != nil {
			return translateStoreError(err, "driver")
		}
		previous = driver.Status
		if err := driver.UpdateStatus(status, now); err != nil {
			return err
		}
		if previous == driver.Status {
			return nil
		}
		if err := s.drivers.Update(ctx, driver); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update driver")
		}
		return nil
	})
	if err = txFailure(err); err != nil {
		return nil, recordSpanError(span, err)
	}
	if previous == driver.Status {
		return driver, nil
	}

	event := audit.Event{
		Action:    audit.ActionDriverStatusChanged,
		Timestamp: now,
		DriverID:  driver.ID,
		CompanyID: driver.CompanyID.String(),
		Subject:   driver.ID.String(),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		Details: map[string]string{
			"previous": string(previous),
			"next":     string(driver.Status),
		},
	}
	if actor := requestcontext.ActorID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	s.emitAudit(ctx, event)
	s.log().InfoContext(ctx, "driver status changed",
		"driver_id", driver.ID,
		"previous", previous,
		"next", driver.Status,
	)
	return driver, nil
}

// CurrentState derives the driver's state from the open events.
func (s *Service) CurrentState(ctx context.Context, driverID domain.DriverID) (*StateView, error) {
	driver, err := s.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, translateStoreError(err, "driver")
	}
	return &StateView{
		DriverID: driver.ID,
		State:    driver.CurrentState(),
		Allowed:  driver.AllowedEvents(),
		Active:   driver.ActiveEvents(),
	}, nil
}

func translateStoreError(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", what)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Newf(dErrors.CodeConflict, "%s was modified concurrently", what)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
