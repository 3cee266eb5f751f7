package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"jornada/internal/journey/models"
	"jornada/internal/journey/workday"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

// MaxRecalculateDays bounds one RecalculateRange call.
const MaxRecalculateDays = 31

// Workday returns the summary of the driver's local calendar day containing
// date, served from cache when possible.
func (s *Service) Workday(ctx context.Context, driverID domain.DriverID, date time.Time) (*models.WorkdaySummary, error) {
	dateKey := date.In(s.location).Format(models.DateLayout)
	ctx, span := s.tracer.Start(ctx, "journey.Workday", trace.WithAttributes(
		attribute.String("driver_id", driverID.String()),
		attribute.String("date", dateKey),
	))
	defer span.End()

	if cached := s.cachedSummary(ctx, driverID, dateKey); cached != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	settings, err := s.settingsFor(ctx, driverID)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	summary, err := s.calculate(ctx, driverID, settings, date)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	return summary, nil
}

// RecalculateRange recomputes every day in [from, to], bypassing the cache.
// Days are processed concurrently; the first failure cancels the rest.
func (s *Service) RecalculateRange(ctx context.Context, driverID domain.DriverID, from, to time.Time) ([]*models.WorkdaySummary, error) {
	ctx, span := s.tracer.Start(ctx, "journey.RecalculateRange", trace.WithAttributes(
		attribute.String("driver_id", driverID.String()),
	))
	defer span.End()

	days := s.daysBetween(from, to)
	if len(days) == 0 {
		return nil, recordSpanError(span, dErrors.New(dErrors.CodeValidation, "range end must not precede its start"))
	}
	if len(days) > MaxRecalculateDays {
		return nil, recordSpanError(span, dErrors.Newf(dErrors.CodeValidation, "range cannot exceed %d days", MaxRecalculateDays))
	}

	settings, err := s.settingsFor(ctx, driverID)
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	summaries := make([]*models.WorkdaySummary, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.recalcLimit)
	for i, day := range days {
		g.Go(func() error {
			summary, err := s.calculate(gctx, driverID, settings, day)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, recordSpanError(span, err)
	}
	span.SetAttributes(attribute.Int("days", len(days)))
	return summaries, nil
}

func (s *Service) cachedSummary(ctx context.Context, driverID domain.DriverID, dateKey string) *models.WorkdaySummary {
	if s.cache == nil {
		return nil
	}
	summary, err := s.cache.Get(ctx, driverID, dateKey)
	if err != nil {
		s.log().WarnContext(ctx, "workday cache read failed",
			"driver_id", driverID,
			"date", dateKey,
			"error", err,
		)
	}
	if summary == nil {
		s.metrics.IncCacheMiss()
		return nil
	}
	s.metrics.IncCacheHit()
	return summary
}

func (s *Service) settingsFor(ctx context.Context, driverID domain.DriverID) (models.CompanySettings, error) {
	driver, err := s.drivers.FindByID(ctx, driverID)
	if err != nil {
		return models.CompanySettings{}, translateStoreError(err, "driver")
	}
	company, err := s.companies.FindByID(ctx, driver.CompanyID)
	if err != nil {
		return models.CompanySettings{}, translateStoreError(err, "company")
	}
	return company.Settings, nil
}

// calculate loads the day plus a lookback window long enough to find the
// previous shift end, then persists and caches the result.
func (s *Service) calculate(ctx context.Context, driverID domain.DriverID, settings models.CompanySettings, date time.Time) (*models.WorkdaySummary, error) {
	local := date.In(s.location)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	from := dayStart.Add(-(24*time.Hour + settings.MinRestBetweenShifts))
	to := dayStart.AddDate(0, 0, 1)

	events, err := s.drivers.ListEvents(ctx, driverID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load events")
	}

	calc := workday.NewCalculator(settings, workday.WithLocation(s.location))
	summary := calc.Calculate(driverID, dayStart, events, s.clock())

	if err := s.summaries.Save(ctx, summary); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save workday summary")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, summary); err != nil {
			s.log().WarnContext(ctx, "workday cache write failed",
				"driver_id", driverID,
				"date", summary.Date,
				"error", err,
			)
		}
	}
	s.metrics.AddAnomalies(len(summary.Anomalies))
	if summary.HasAnomalies() {
		s.log().InfoContext(ctx, "workday anomalies detected",
			"driver_id", driverID,
			"date", summary.Date,
			"anomalies", summary.Anomalies,
		)
	}
	return summary, nil
}

// daysBetween lists local midnights from from's day to to's day inclusive.
func (s *Service) daysBetween(from, to time.Time) []time.Time {
	f := from.In(s.location)
	t := to.In(s.location)
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, s.location)
	end := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.location)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
		if len(days) > MaxRecalculateDays {
			break
		}
	}
	return days
}
