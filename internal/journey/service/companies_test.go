package service

import (
	"time"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
	audit "jornada/pkg/platform/audit"
	"jornada/pkg/requestcontext"
)

func (s *ServiceSuite) TestRegisterCompany() {
	s.captureAudit()

	s.Run("uses the default settings", func() {
		c, err := s.service.RegisterCompany(s.ctx, RegisterCompanyCommand{Name: "Rodovia Sul", Cnpj: "11.444.777/0001-61"})
		s.Require().NoError(err)
		s.Equal(models.DefaultCompanySettings(), c.Settings)
		s.True(c.Active)

		stored, err := s.companies.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal("Rodovia Sul", stored.Name)

		s.Require().NotEmpty(s.emitted)
		last := s.emitted[len(s.emitted)-1]
		s.Equal(audit.ActionCompanyRegistered, last.Action)
		s.Equal(c.ID.String(), last.CompanyID)
	})

	s.Run("duplicate cnpj conflicts", func() {
		_, err := s.service.RegisterCompany(s.ctx, RegisterCompanyCommand{Name: "Outra", Cnpj: "11222333000181"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid cnpj is rejected", func() {
		_, err := s.service.RegisterCompany(s.ctx, RegisterCompanyCommand{Name: "Outra", Cnpj: "11222333000100"})
		s.Require().Error(err)
		s.NotEqual(dErrors.CodeInternal, dErrors.CodeOf(err))
	})

	s.Run("invalid settings are rejected", func() {
		bad := models.DefaultCompanySettings()
		bad.MaxDailyWork = 0
		_, err := s.service.RegisterCompany(s.ctx, RegisterCompanyCommand{Name: "Outra", Cnpj: "11444777000161", Settings: &bad})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUpdateCompanySettings() {
	s.captureAudit()
	actor := domain.NewUserID()
	ctx := requestcontext.WithActorID(s.ctx, actor)

	settings := models.DefaultCompanySettings()
	settings.MaxDailyWork = 10 * time.Hour

	c, err := s.service.UpdateCompanySettings(ctx, s.company.ID, settings)
	s.Require().NoError(err)
	s.Equal(10*time.Hour, c.Settings.MaxDailyWork)

	stored, err := s.service.GetCompany(s.ctx, s.company.ID)
	s.Require().NoError(err)
	s.Equal(10*time.Hour, stored.Settings.MaxDailyWork)

	s.Require().Len(s.emitted, 1)
	s.Equal(audit.ActionSettingsChanged, s.emitted[0].Action)
	s.Equal(actor.String(), s.emitted[0].ActorID)
	s.Equal("8h0m0s -> 10h0m0s", s.emitted[0].Details["max_daily_work"])

	s.Run("unchanged settings emit nothing", func() {
		_, err := s.service.UpdateCompanySettings(ctx, s.company.ID, settings)
		s.Require().NoError(err)
		s.Len(s.emitted, 1)
	})

	s.Run("unknown company", func() {
		_, err := s.service.UpdateCompanySettings(ctx, domain.NewCompanyID(), settings)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
