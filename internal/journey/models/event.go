package models

import (
	"sort"
	"strings"
	"time"

	"jornada/internal/journey/fsm"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

// MaxClockDrift bounds how far an event's start may sit from the instant it
// is recorded. Anything further is treated as a broken device clock.
const MaxClockDrift = 24 * time.Hour

type EventSource string

const (
	SourceMobileManual EventSource = "mobile_manual"
	SourceMobileAuto   EventSource = "mobile_auto"
	SourcePortal       EventSource = "portal"
)

func (s EventSource) IsValid() bool {
	switch s {
	case SourceMobileManual, SourceMobileAuto, SourcePortal:
		return true
	}
	return false
}

// Event is a single journey record owned by a Driver.
//
// Invariants:
//   - EndedAt, when set, is strictly after StartedAt
//   - StartedAt was within MaxClockDrift of the creation instant
//   - End-type events are instantaneous markers: they never carry EndedAt
//   - DriverID never changes; events are edited, never deleted
//
// At most one active event per type per driver is enforced by Driver, not here.
type Event struct {
	ID             domain.EventID    `json:"id"`
	DriverID       domain.DriverID   `json:"driver_id"`
	CompanyID      domain.CompanyID  `json:"company_id"`
	VehicleID      *domain.VehicleID `json:"vehicle_id,omitempty"`
	Type           fsm.EventType     `json:"type"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	LocationStart  *domain.Location  `json:"location_start,omitempty"`
	LocationEnd    *domain.Location  `json:"location_end,omitempty"`
	Source         EventSource       `json:"source"`
	DeviceTimeSkew *time.Duration    `json:"device_time_skew,omitempty"`
	EditedBy       *domain.UserID    `json:"edited_by,omitempty"`
	EditReason     string            `json:"edit_reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type NewEventParams struct {
	ID             domain.EventID
	DriverID       domain.DriverID
	CompanyID      domain.CompanyID
	VehicleID      *domain.VehicleID
	Type           fsm.EventType
	StartedAt      time.Time
	Location       *domain.Location
	Source         EventSource
	DeviceTimeSkew *time.Duration
}

// NewEvent validates p against now. A nil ID is replaced with a fresh one
// and an empty source defaults to mobile_manual.
func NewEvent(p NewEventParams, now time.Time) (*Event, error) {
	if p.DriverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "driver_id is required")
	}
	if p.CompanyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "company_id is required")
	}
	if !p.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is invalid")
	}
	if p.StartedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "started_at is required")
	}
	if drift := absDuration(p.StartedAt.Sub(now)); drift > MaxClockDrift {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"started_at is %s away from now, exceeding the %s window", drift.Round(time.Minute), MaxClockDrift)
	}
	source := p.Source
	if source == "" {
		source = SourceMobileManual
	}
	if !source.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid event source: %s", p.Source)
	}
	id := p.ID
	if id.IsNil() {
		id = domain.NewEventID()
	}
	return &Event{
		ID:             id,
		DriverID:       p.DriverID,
		CompanyID:      p.CompanyID,
		VehicleID:      p.VehicleID,
		Type:           p.Type,
		StartedAt:      p.StartedAt.UTC(),
		LocationStart:  p.Location,
		Source:         source,
		DeviceTimeSkew: p.DeviceTimeSkew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsActive reports whether e is an open start event.
func (e *Event) IsActive() bool {
	return e.Type.IsStart() && e.EndedAt == nil
}

func (e *Event) IsCompleted() bool {
	return e.EndedAt != nil
}

func (e *Event) IsStart() bool { return e.Type.IsStart() }
func (e *Event) IsEnd() bool   { return e.Type.IsEnd() }

// Duration is available only once the event has ended.
func (e *Event) Duration() (time.Duration, bool) {
	if e.EndedAt == nil {
		return 0, false
	}
	return e.EndedAt.Sub(e.StartedAt), true
}

// DistanceKm is the great-circle distance between the start and end
// locations, when both were captured.
func (e *Event) DistanceKm() (float64, bool) {
	if e.LocationStart == nil || e.LocationEnd == nil {
		return 0, false
	}
	return e.LocationStart.DistanceToKm(*e.LocationEnd), true
}

// SkewExceeds reports whether the device clock skew recorded with the event
// is larger than tolerance in either direction.
func (e *Event) SkewExceeds(tolerance time.Duration) bool {
	if e.DeviceTimeSkew == nil {
		return false
	}
	return absDuration(*e.DeviceTimeSkew) > tolerance
}

func (e *Event) validateEnd(endedAt time.Time) error {
	if e.Type.IsEnd() {
		return dErrors.Newf(dErrors.CodeBusinessRule, "%s is a marker and cannot be ended", e.Type)
	}
	if e.EndedAt != nil {
		return dErrors.Newf(dErrors.CodeBusinessRule, "%s event already ended", e.Type)
	}
	if !endedAt.After(e.StartedAt) {
		return dErrors.Newf(dErrors.CodeBusinessRule, "%s cannot end at or before its start", e.Type)
	}
	return nil
}

// End closes the event at endedAt.
func (e *Event) End(endedAt time.Time, loc *domain.Location, now time.Time) error {
	if err := e.validateEnd(endedAt); err != nil {
		return err
	}
	ended := endedAt.UTC()
	e.EndedAt = &ended
	e.LocationEnd = loc
	e.UpdatedAt = now
	return nil
}

// ConflictsWith reports whether e and other belong to the same driver, have
// different types and overlap in time. Open events extend to infinity.
func (e *Event) ConflictsWith(other *Event) bool {
	if other == nil || e.DriverID != other.DriverID || e.Type == other.Type {
		return false
	}
	return startsBeforeEnd(e.StartedAt, other.EndedAt) && startsBeforeEnd(other.StartedAt, e.EndedAt)
}

func startsBeforeEnd(start time.Time, end *time.Time) bool {
	return end == nil || start.Before(*end)
}

// EditParams carries a post-hoc correction. Nil fields are left untouched.
type EditParams struct {
	EditedBy      domain.UserID
	Reason        string
	StartedAt     *time.Time
	EndedAt       *time.Time
	LocationStart *domain.Location
	LocationEnd   *domain.Location
}

// FieldChange records one edited field in its display form.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Edit applies the supplied fields that differ from the current values. It
// returns nil when nothing changed so no audit entry is produced.
func (e *Event) Edit(p EditParams, now time.Time) (*EventEdited, error) {
	if strings.TrimSpace(p.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "edit reason is required")
	}
	if p.EditedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "edited_by is required")
	}
	if p.EndedAt != nil && e.Type.IsEnd() {
		return nil, dErrors.Newf(dErrors.CodeBusinessRule, "%s is a marker and has no end", e.Type)
	}

	startedAt := e.StartedAt
	if p.StartedAt != nil {
		startedAt = p.StartedAt.UTC()
	}
	endedAt := e.EndedAt
	if p.EndedAt != nil {
		v := p.EndedAt.UTC()
		endedAt = &v
	}
	if endedAt != nil && !endedAt.After(startedAt) {
		return nil, dErrors.New(dErrors.CodeBusinessRule, "edited event would end at or before its start")
	}

	var changes []FieldChange
	if p.StartedAt != nil && !startedAt.Equal(e.StartedAt) {
		changes = append(changes, FieldChange{Field: "started_at", Old: formatTime(&e.StartedAt), New: formatTime(&startedAt)})
	}
	if p.EndedAt != nil && !timesEqual(e.EndedAt, endedAt) {
		changes = append(changes, FieldChange{Field: "ended_at", Old: formatTime(e.EndedAt), New: formatTime(endedAt)})
	}
	if p.LocationStart != nil && !locationsEqual(e.LocationStart, p.LocationStart) {
		changes = append(changes, FieldChange{Field: "location_start", Old: formatLocation(e.LocationStart), New: formatLocation(p.LocationStart)})
	}
	if p.LocationEnd != nil && !locationsEqual(e.LocationEnd, p.LocationEnd) {
		changes = append(changes, FieldChange{Field: "location_end", Old: formatLocation(e.LocationEnd), New: formatLocation(p.LocationEnd)})
	}
	if len(changes) == 0 {
		return nil, nil
	}

	e.StartedAt = startedAt
	e.EndedAt = endedAt
	if p.LocationStart != nil {
		e.LocationStart = p.LocationStart
	}
	if p.LocationEnd != nil {
		e.LocationEnd = p.LocationEnd
	}
	editor := p.EditedBy
	e.EditedBy = &editor
	e.EditReason = strings.TrimSpace(p.Reason)
	e.UpdatedAt = now

	return &EventEdited{
		EventID:  e.ID,
		DriverID: e.DriverID,
		Type:     e.Type,
		EditedBy: editor,
		Reason:   e.EditReason,
		Changes:  changes,
		At:       now,
	}, nil
}

// SortEvents orders events chronologically. At the same instant end markers
// come before starts, so a close recorded together with the start it made
// room for replays in the right order.
func SortEvents(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		if a.Type.IsEnd() != b.Type.IsEnd() {
			return a.Type.IsEnd()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func locationsEqual(a, b *domain.Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatLocation(l *domain.Location) string {
	if l == nil {
		return ""
	}
	return l.String()
}
