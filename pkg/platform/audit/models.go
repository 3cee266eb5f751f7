package audit

import (
	"context"
	"time"

	"jornada/pkg/domain"
)

// EventCategory drives retention and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers records a labour inspection may ask for:
	// edits to the journey log and driver lifecycle changes.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine journey activity.
	CategoryOperations EventCategory = "operations"
)

type Action string

const (
	ActionDriverRegistered    Action = "driver_registered"
	ActionDriverStatusChanged Action = "driver_status_changed"
	ActionEventCreated        Action = "journey_event_created"
	ActionEventEnded          Action = "journey_event_ended"
	ActionEventAutoClosed     Action = "journey_event_auto_closed"
	ActionEventEdited         Action = "journey_event_edited"
	ActionStateChanged        Action = "driver_state_changed"
	ActionCompanyRegistered   Action = "company_registered"
	ActionSettingsChanged     Action = "company_settings_changed"
)

var actionCategories = map[Action]EventCategory{
	ActionDriverRegistered:    CategoryCompliance,
	ActionDriverStatusChanged: CategoryCompliance,
	ActionEventEdited:         CategoryCompliance,
	ActionEventAutoClosed:     CategoryCompliance,
	ActionCompanyRegistered:   CategoryCompliance,
	ActionSettingsChanged:     CategoryCompliance,

	ActionEventCreated: CategoryOperations,
	ActionEventEnded:   CategoryOperations,
	ActionStateChanged: CategoryOperations,
}

// Category returns the category of a. Unknown actions are operational.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one audit record. It stays transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	ID        string          `json:"id"`
	Category  EventCategory   `json:"category"`
	Action    Action          `json:"action"`
	Timestamp time.Time       `json:"timestamp"`
	DriverID  domain.DriverID `json:"driver_id"`
	CompanyID string          `json:"company_id,omitempty"`
	// ActorID is set when someone other than the driver acted, e.g. an editor.
	ActorID   string            `json:"actor_id,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Normalize fills the derived fields before an event is stored.
func (e *Event) Normalize(now time.Time) {
	if e.Category == "" {
		e.Category = e.Action.Category()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDriver(ctx context.Context, driverID domain.DriverID) ([]Event, error)
}
