package service

import (
	"context"
	"strings"
	"time"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	audit "jornada/pkg/platform/audit"
	"jornada/pkg/requestcontext"
)

// toAuditEvent maps a domain notification onto the audit trail.
func toAuditEvent(ctx context.Context, companyID domain.CompanyID, n models.Notification) audit.Event {
	event := audit.Event{
		Timestamp: n.OccurredAt(),
		DriverID:  n.DriverRef(),
		CompanyID: companyID.String(),
		RequestID: requestcontext.RequestID(ctx),
	}
	if actor := requestcontext.ActorID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}

	switch n := n.(type) {
	case models.EventCreated:
		event.Action = audit.ActionEventCreated
		event.Subject = n.EventID.String()
		event.Details = map[string]string{
			"type":       n.Type.String(),
			"started_at": n.StartedAt.Format(time.RFC3339),
			"source":     string(n.Source),
		}
	case models.EventEnded:
		event.Action = audit.ActionEventEnded
		if n.AutoClosed {
			event.Action = audit.ActionEventAutoClosed
		}
		event.Subject = n.EventID.String()
		event.Details = map[string]string{
			"type":      n.Type.String(),
			"ended_at":  n.EndedAt.Format(time.RFC3339),
			"duration":  n.Duration.String(),
			"marker_id": n.MarkerID.String(),
		}
	case models.EventEdited:
		event.Action = audit.ActionEventEdited
		event.Subject = n.EventID.String()
		event.ActorID = n.EditedBy.String()
		event.Reason = n.Reason
		event.Details = map[string]string{"type": n.Type.String()}
		fields := make([]string, 0, len(n.Changes))
		for _, c := range n.Changes {
			event.Details[c.Field] = c.Old + " -> " + c.New
			fields = append(fields, c.Field)
		}
		event.Details["fields"] = strings.Join(fields, ",")
	case models.DriverStateChanged:
		event.Action = audit.ActionStateChanged
		event.Subject = n.DriverID.String()
		event.Details = map[string]string{
			"previous": n.Previous.String(),
			"next":     n.Next.String(),
			"trigger":  n.Trigger.String(),
		}
	}
	return event
}

func (s *Service) publishNotifications(ctx context.Context, companyID domain.CompanyID, notes []models.Notification) {
	for _, n := range notes {
		s.emitAudit(ctx, toAuditEvent(ctx, companyID, n))
	}
}

// emitAudit never fails the caller; the journey change is already committed.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.log().ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"driver_id", event.DriverID,
			"error", err,
		)
	}
}
