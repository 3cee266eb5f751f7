package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"jornada/internal/journey/fsm"
	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

// StartEvent records a journey event for the driver. Conflicting
// sub-activities are closed automatically; see models.Driver.StartEvent.
func (s *Service) StartEvent(ctx context.Context, driverID domain.DriverID, cmd models.StartEventCommand) (*models.MutationResult, error) {
	begin := time.Now()
	defer s.metrics.ObserveMutation("start_event", begin)
	ctx, span := s.tracer.Start(ctx, "journey.StartEvent", trace.WithAttributes(
		attribute.String("driver_id", driverID.String()),
		attribute.String("event_type", cmd.Type.String()),
	))
	defer span.End()

	var (
		res       *models.MutationResult
		companyID domain.CompanyID
	)
	now := s.clock()
	err := s.tx.RunInTx(ctx, driverID, func(ctx context.Context) error {
		driver, err := s.drivers.FindByID(ctx, driverID)
		if err != nil {
			return translateStoreError(err, "driver")
		}
		companyID = driver.CompanyID
		res, err = driver.StartEvent(cmd, now)
		if err != nil {
			return err
		}
		return s.saveEvents(ctx, res.Changed)
	})
	if err = txFailure(err); err != nil {
		s.logRejected(ctx, driverID, cmd.Type, err)
		return nil, recordSpanError(span, err)
	}

	span.SetAttributes(attribute.String("state", res.State.String()))
	s.afterMutation(ctx, driverID, companyID, s.affectedDays(res.Changed), res.Notifications)
	s.log().InfoContext(ctx, "journey event recorded",
		"driver_id", driverID,
		"event_type", cmd.Type,
		"state", res.State,
		"auto_closed", res.AutoClosed != nil,
	)
	return res, nil
}

// EndEvent closes the driver's active event of cmd.Type's activity.
func (s *Service) EndEvent(ctx context.Context, driverID domain.DriverID, cmd models.EndEventCommand) (*models.MutationResult, error) {
	begin := time.Now()
	defer s.metrics.ObserveMutation("end_event", begin)
	ctx, span := s.tracer.Start(ctx, "journey.EndEvent", trace.WithAttributes(
		attribute.String("driver_id", driverID.String()),
		attribute.String("event_type", cmd.Type.String()),
	))
	defer span.End()

	var (
		res       *models.MutationResult
		companyID domain.CompanyID
	)
	now := s.clock()
	err := s.tx.RunInTx(ctx, driverID, func(ctx context.Context) error {
		driver, err := s.drivers.FindByID(ctx, driverID)
		if err != nil {
			return translateStoreError(err, "driver")
		}
		companyID = driver.CompanyID
		res, err = driver.EndEvent(cmd, now)
		if err != nil {
			return err
		}
		return s.saveEvents(ctx, res.Changed)
	})
	if err = txFailure(err); err != nil {
		s.logRejected(ctx, driverID, cmd.Type, err)
		return nil, recordSpanError(span, err)
	}

	s.afterMutation(ctx, driverID, companyID, s.affectedDays(res.Changed), res.Notifications)
	s.log().InfoContext(ctx, "journey event ended",
		"driver_id", driverID,
		"event_type", res.Event.Type,
		"state", res.State,
	)
	return res, nil
}

// EditEvent applies a manual correction. An edit that changes nothing
// returns the event untouched and leaves no audit record.
func (s *Service) EditEvent(ctx context.Context, driverID domain.DriverID, eventID domain.EventID, p models.EditParams) (*models.Event, error) {
	begin := time.Now()
	defer s.metrics.ObserveMutation("edit_event", begin)
	ctx, span := s.tracer.Start(ctx, "journey.EditEvent", trace.WithAttributes(
		attribute.String("driver_id", driverID.String()),
		attribute.String("event_id", eventID.String()),
	))
	defer span.End()

	var (
		edited    models.Event
		before    []*models.Event
		after     []*models.Event
		notes     []models.Notification
		companyID domain.CompanyID
	)
	now := s.clock()
	err := s.tx.RunInTx(ctx, driverID, func(ctx context.Context) error {
		driver, err := s.drivers.FindByID(ctx, driverID)
		if err != nil {
			return translateStoreError(err, "driver")
		}
		companyID = driver.CompanyID
		snapshots := make(map[domain.EventID]models.Event)
		for _, e := range driver.Events() {
			snapshots[e.ID] = e
		}
		if _, ok := snapshots[eventID]; !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "event %s not found for driver", eventID)
		}
		res, err := driver.EditEvent(eventID, p, now)
		if err != nil {
			return err
		}
		edited, _ = driver.Event(eventID)
		if res == nil {
			return nil
		}
		for _, changed := range []*models.Event{res.Event, res.Paired} {
			if changed == nil {
				continue
			}
			old := snapshots[changed.ID]
			current := *changed
			before = append(before, &old)
			after = append(after, &current)
		}
		for _, n := range res.Notifications {
			notes = append(notes, *n)
		}
		return s.saveEvents(ctx, after)
	})
	if err != nil {
		return nil, recordSpanError(span, txFailure(err))
	}
	if len(notes) == 0 {
		return &edited, nil
	}

	days := s.affectedDays(append(before, after...))
	s.afterMutation(ctx, driverID, companyID, days, notes)
	s.log().InfoContext(ctx, "journey event edited",
		"driver_id", driverID,
		"event_id", eventID,
		"edited_by", p.EditedBy,
		"records", len(after),
	)
	return &edited, nil
}

func (s *Service) saveEvents(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.drivers.SaveEvents(ctx, events); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save events")
	}
	return nil
}

// affectedDays lists the workdays whose summary a change may alter. The day
// after each event is included because its rest-between-shifts check looks
// back at the previous shift end.
func (s *Service) affectedDays(events []*models.Event) []string {
	seen := make(map[string]struct{})
	var days []string
	add := func(t time.Time) {
		key := t.In(s.location).Format(models.DateLayout)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		days = append(days, key)
	}
	for _, e := range events {
		add(e.StartedAt)
		add(e.StartedAt.In(s.location).AddDate(0, 0, 1))
		if e.EndedAt != nil {
			add(*e.EndedAt)
		}
	}
	return days
}

func (s *Service) afterMutation(ctx context.Context, driverID domain.DriverID, companyID domain.CompanyID, days []string, notes []models.Notification) {
	if s.cache != nil && len(days) > 0 {
		if err := s.cache.Invalidate(ctx, driverID, days...); err != nil {
			s.log().WarnContext(ctx, "failed to invalidate workday cache",
				"driver_id", driverID,
				"days", days,
				"error", err,
			)
		}
	}
	for _, n := range notes {
		switch n := n.(type) {
		case models.EventCreated:
			s.metrics.IncStarted(n.Type.String())
		case models.EventEnded:
			if n.AutoClosed {
				s.metrics.IncAutoClosed(n.Type.String())
			} else {
				s.metrics.IncEnded(n.Type.String())
			}
		case models.EventEdited:
			s.metrics.IncEdited()
		}
	}
	s.publishNotifications(ctx, companyID, notes)
}

func (s *Service) logRejected(ctx context.Context, driverID domain.DriverID, eventType fsm.EventType, err error) {
	var te *fsm.TransitionError
	if errors.As(err, &te) {
		s.metrics.IncRejected(te.From.String())
		s.log().InfoContext(ctx, "journey transition rejected",
			"driver_id", driverID,
			"event_type", eventType,
			"state", te.From,
		)
		return
	}
	if dErrors.Is(err, dErrors.CodeInternal) {
		s.log().ErrorContext(ctx, "journey mutation failed",
			"driver_id", driverID,
			"event_type", eventType,
			"error", err,
		)
	}
}
