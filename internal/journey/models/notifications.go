package models

import (
	"time"

	"jornada/internal/journey/fsm"
	"jornada/pkg/domain"
)

// Notification is a fact emitted by the Driver aggregate. Operations return
// them alongside their result; callers hand them to the audit layer.
type Notification interface {
	NotificationName() string
	OccurredAt() time.Time
	DriverRef() domain.DriverID
}

const (
	NotificationEventCreated       = "journey.event_created"
	NotificationEventEnded         = "journey.event_ended"
	NotificationEventEdited        = "journey.event_edited"
	NotificationDriverStateChanged = "journey.driver_state_changed"
)

type EventCreated struct {
	EventID   domain.EventID
	DriverID  domain.DriverID
	CompanyID domain.CompanyID
	Type      fsm.EventType
	StartedAt time.Time
	Source    EventSource
	At        time.Time
}

func (n EventCreated) NotificationName() string   { return NotificationEventCreated }
func (n EventCreated) OccurredAt() time.Time      { return n.At }
func (n EventCreated) DriverRef() domain.DriverID { return n.DriverID }

// EventEnded is emitted for explicit ends and for auto-closes. MarkerID is
// the end marker appended to the log for the same instant.
type EventEnded struct {
	EventID    domain.EventID
	MarkerID   domain.EventID
	DriverID   domain.DriverID
	Type       fsm.EventType
	EndedAt    time.Time
	Duration   time.Duration
	AutoClosed bool
	At         time.Time
}

func (n EventEnded) NotificationName() string   { return NotificationEventEnded }
func (n EventEnded) OccurredAt() time.Time      { return n.At }
func (n EventEnded) DriverRef() domain.DriverID { return n.DriverID }

type EventEdited struct {
	EventID  domain.EventID
	DriverID domain.DriverID
	Type     fsm.EventType
	EditedBy domain.UserID
	Reason   string
	Changes  []FieldChange
	At       time.Time
}

func (n EventEdited) NotificationName() string   { return NotificationEventEdited }
func (n EventEdited) OccurredAt() time.Time      { return n.At }
func (n EventEdited) DriverRef() domain.DriverID { return n.DriverID }

type DriverStateChanged struct {
	DriverID domain.DriverID
	Previous fsm.DriverState
	Next     fsm.DriverState
	Trigger  fsm.EventType
	At       time.Time
}

func (n DriverStateChanged) NotificationName() string   { return NotificationDriverStateChanged }
func (n DriverStateChanged) OccurredAt() time.Time      { return n.At }
func (n DriverStateChanged) DriverRef() domain.DriverID { return n.DriverID }
