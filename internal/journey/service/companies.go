package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
	audit "jornada/pkg/platform/audit"
	"jornada/pkg/platform/sentinel"
	"jornada/pkg/requestcontext"
)

type RegisterCompanyCommand struct {
	Name string
	Cnpj string
	// Settings falls back to the service defaults when nil.
	Settings *models.CompanySettings
}

func (s *Service) RegisterCompany(ctx context.Context, cmd RegisterCompanyCommand) (*models.Company, error) {
	ctx, span := s.tracer.Start(ctx, "journey.RegisterCompany")
	defer span.End()

	cnpj, err := domain.ParseCnpj(cmd.Cnpj)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	settings := s.defaults
	if cmd.Settings != nil {
		settings = *cmd.Settings
	}
	now := s.clock()
	company, err := models.NewCompany(domain.NewCompanyID(), cmd.Name, cnpj, settings, now)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if err := s.companies.Create(ctx, company); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, recordSpanError(span, dErrors.New(dErrors.CodeConflict, "cnpj already registered"))
		}
		return nil, recordSpanError(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create company"))
	}
	span.SetAttributes(attribute.String("company_id", company.ID.String()))

	s.emitAudit(ctx, s.companyAudit(ctx, audit.ActionCompanyRegistered, company, map[string]string{
		"cnpj": cnpj.Formatted(),
	}))
	s.log().InfoContext(ctx, "company registered", "company_id", company.ID)
	return company, nil
}

func (s *Service) GetCompany(ctx context.Context, companyID domain.CompanyID) (*models.Company, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, translateStoreError(err, "company")
	}
	return company, nil
}

// UpdateCompanySettings replaces the labour limits of a company. Summaries
// already calculated keep the old limits until they are recalculated.
func (s *Service) UpdateCompanySettings(ctx context.Context, companyID domain.CompanyID, settings models.CompanySettings) (*models.Company, error) {
	ctx, span := s.tracer.Start(ctx, "journey.UpdateCompanySettings")
	defer span.End()
	span.SetAttributes(attribute.String("company_id", companyID.String()))

	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, recordSpanError(span, translateStoreError(err, "company"))
	}
	previous := company.Settings
	if err := company.UpdateSettings(settings, s.clock()); err != nil {
		return nil, recordSpanError(span, err)
	}
	if previous == company.Settings {
		return company, nil
	}
	if err := s.companies.Update(ctx, company); err != nil {
		return nil, recordSpanError(span, translateStoreError(err, "company"))
	}

	s.emitAudit(ctx, s.companyAudit(ctx, audit.ActionSettingsChanged, company, map[string]string{
		"max_daily_work":             fmt.Sprintf("%s -> %s", previous.MaxDailyWork, settings.MaxDailyWork),
		"min_rest_between_shifts":    fmt.Sprintf("%s -> %s", previous.MinRestBetweenShifts, settings.MinRestBetweenShifts),
		"max_continuous_work":        fmt.Sprintf("%s -> %s", previous.MaxContinuousWork, settings.MaxContinuousWork),
		"require_location_on_events": fmt.Sprintf("%t -> %t", previous.RequireLocationOnEvents, settings.RequireLocationOnEvents),
		"clock_skew_tolerance":       fmt.Sprintf("%s -> %s", previous.ClockSkewTolerance, settings.ClockSkewTolerance),
	}))
	s.log().InfoContext(ctx, "company settings updated", "company_id", company.ID)
	return company, nil
}

func (s *Service) companyAudit(ctx context.Context, action audit.Action, company *models.Company, details map[string]string) audit.Event {
	event := audit.Event{
		Action:    action,
		Timestamp: s.clock(),
		CompanyID: company.ID.String(),
		Subject:   company.ID.String(),
		RequestID: requestcontext.RequestID(ctx),
		Details:   details,
	}
	if actor := requestcontext.ActorID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	return event
}
