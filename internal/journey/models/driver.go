package models

import (
	"errors"
	"strings"
	"time"

	"jornada/internal/journey/fsm"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

type DriverStatus string

const (
	DriverStatusActive     DriverStatus = "active"
	DriverStatusInactive   DriverStatus = "inactive"
	DriverStatusSuspended  DriverStatus = "suspended"
	DriverStatusTerminated DriverStatus = "terminated"
)

func (s DriverStatus) IsValid() bool {
	switch s {
	case DriverStatusActive, DriverStatusInactive, DriverStatusSuspended, DriverStatusTerminated:
		return true
	}
	return false
}

func ParseDriverStatus(s string) (DriverStatus, error) {
	status := DriverStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid driver status: %s", s)
	}
	return status, nil
}

// Driver is the aggregate root for a driver and the journey log it owns.
//
// Invariants:
//   - Name, Phone and Email are non-empty; Cpf is a valid CPF
//   - Replaying the event log reaches a valid DriverState at every step
//   - At most one active event per type; sub-activities are mutually exclusive
//   - Only active drivers may start events
//   - Terminated is final
//
// The state is never stored. CurrentState projects it from the open events.
// Callers must serialise mutations per driver; the aggregate itself holds no lock.
type Driver struct {
	ID           domain.DriverID  `json:"id"`
	CompanyID    domain.CompanyID `json:"company_id"`
	Name         string           `json:"name"`
	Cpf          domain.Cpf       `json:"cpf"`
	Phone        string           `json:"phone"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"`
	Status       DriverStatus     `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`

	events []*Event
}

func NewDriver(
	driverID domain.DriverID,
	companyID domain.CompanyID,
	name string,
	cpf domain.Cpf,
	phone string,
	email string,
	now time.Time,
) (*Driver, error) {
	if driverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "driver id is required")
	}
	if companyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "company id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "driver name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeValidation, "driver name must be 128 characters or less")
	}
	if cpf.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "driver cpf is required")
	}
	if err := validateContact(phone, email); err != nil {
		return nil, err
	}
	return &Driver{
		ID:        driverID,
		CompanyID: companyID,
		Name:      name,
		Cpf:       cpf,
		Phone:     strings.TrimSpace(phone),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Status:    DriverStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func validateContact(phone, email string) error {
	if strings.TrimSpace(phone) == "" {
		return dErrors.New(dErrors.CodeValidation, "driver phone cannot be empty")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "driver email cannot be empty")
	}
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 {
		return dErrors.New(dErrors.CodeValidation, "driver email is invalid")
	}
	return nil
}

func (d *Driver) IsActive() bool {
	return d.Status == DriverStatusActive
}

// UpdateStatus moves the driver to status. Leaving terminated is rejected.
func (d *Driver) UpdateStatus(status DriverStatus, now time.Time) error {
	if !status.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid driver status: %s", status)
	}
	if d.Status == DriverStatusTerminated && status != DriverStatusTerminated {
		return dErrors.New(dErrors.CodeBusinessRule, "terminated drivers cannot be reinstated")
	}
	if d.Status == status {
		return nil
	}
	d.Status = status
	d.UpdatedAt = now
	return nil
}

func (d *Driver) UpdateContactInfo(phone, email string, now time.Time) error {
	if err := validateContact(phone, email); err != nil {
		return err
	}
	d.Phone = strings.TrimSpace(phone)
	d.Email = strings.ToLower(strings.TrimSpace(email))
	d.UpdatedAt = now
	return nil
}

// SetPassword stores an already hashed password.
func (d *Driver) SetPassword(hash string, now time.Time) error {
	if hash == "" {
		return dErrors.New(dErrors.CodeValidation, "password hash cannot be empty")
	}
	d.PasswordHash = hash
	d.UpdatedAt = now
	return nil
}

// LoadEvents replaces the event log with events read from storage.
func (d *Driver) LoadEvents(events []*Event) {
	d.events = make([]*Event, len(events))
	copy(d.events, events)
	SortEvents(d.events)
}

// Events returns a snapshot of the event log in replay order.
func (d *Driver) Events() []Event {
	out := make([]Event, len(d.events))
	for i, e := range d.events {
		out[i] = *e
	}
	return out
}

// ActiveEvents returns a snapshot of the open start events.
func (d *Driver) ActiveEvents() []Event {
	var out []Event
	for _, e := range d.events {
		if e.IsActive() {
			out = append(out, *e)
		}
	}
	return out
}

func (d *Driver) openEvents() []fsm.OpenEvent {
	var out []fsm.OpenEvent
	for _, e := range d.events {
		if e.IsActive() {
			out = append(out, fsm.OpenEvent{Type: e.Type, StartedAt: e.StartedAt})
		}
	}
	return out
}

// CurrentState projects the driver state from the open events.
func (d *Driver) CurrentState() fsm.DriverState {
	return fsm.CurrentState(d.openEvents())
}

func (d *Driver) AllowedEvents() []fsm.EventType {
	return fsm.AllowedEvents(d.CurrentState())
}

// activeEvent returns the most recent open event of the given start type.
func (d *Driver) activeEvent(start fsm.EventType) *Event {
	for i := len(d.events) - 1; i >= 0; i-- {
		if e := d.events[i]; e.Type == start && e.IsActive() {
			return e
		}
	}
	return nil
}

func (d *Driver) findEvent(id domain.EventID) *Event {
	for _, e := range d.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

type StartEventCommand struct {
	EventID        domain.EventID
	Type           fsm.EventType
	StartedAt      time.Time
	Location       *domain.Location
	Source         EventSource
	VehicleID      *domain.VehicleID
	DeviceTimeSkew *time.Duration
}

type EndEventCommand struct {
	Type     fsm.EventType
	EndedAt  time.Time
	Location *domain.Location
}

// MutationResult describes what a start or end did to the log.
type MutationResult struct {
	// Event is the event created by StartEvent or closed by EndEvent.
	Event *Event
	// Marker is the end marker appended by EndEvent.
	Marker *Event
	// AutoClosed is the conflicting event ended implicitly, if any.
	AutoClosed    *Event
	PreviousState fsm.DriverState
	State         fsm.DriverState
	Notifications []Notification
	// Changed lists every event created or mutated, in log order.
	Changed []*Event
}

// closing is a planned close of an open start event plus the end marker that
// records it in the log.
type closing struct {
	target *Event
	marker *Event
	auto   bool
}

func (d *Driver) planClose(target *Event, at time.Time, loc *domain.Location, source EventSource, auto bool, now time.Time) (*closing, error) {
	if err := target.validateEnd(at); err != nil {
		return nil, err
	}
	marker, err := NewEvent(NewEventParams{
		DriverID:  d.ID,
		CompanyID: d.CompanyID,
		VehicleID: target.VehicleID,
		Type:      fsm.PairType(target.Type),
		StartedAt: at,
		Location:  loc,
		Source:    source,
	}, now)
	if err != nil {
		return nil, err
	}
	return &closing{target: target, marker: marker, auto: auto}, nil
}

func (d *Driver) applyClose(c *closing, res *MutationResult, now time.Time) {
	// validated by planClose
	_ = c.target.End(c.marker.StartedAt, c.marker.LocationStart, now)
	d.events = append(d.events, c.marker)
	duration, _ := c.target.Duration()
	res.Changed = append(res.Changed, c.target, c.marker)
	res.Notifications = append(res.Notifications, EventEnded{
		EventID:    c.target.ID,
		MarkerID:   c.marker.ID,
		DriverID:   d.ID,
		Type:       c.target.Type,
		EndedAt:    *c.target.EndedAt,
		Duration:   duration,
		AutoClosed: c.auto,
		At:         now,
	})
	if c.auto {
		res.AutoClosed = c.target
	}
}

func (d *Driver) finish(res *MutationResult, trigger fsm.EventType, now time.Time) {
	res.State = d.CurrentState()
	if res.State != res.PreviousState {
		res.Notifications = append(res.Notifications, DriverStateChanged{
			DriverID: d.ID,
			Previous: res.PreviousState,
			Next:     res.State,
			Trigger:  trigger,
			At:       now,
		})
	}
	d.UpdatedAt = now
}

func transitionError(current fsm.DriverState, event fsm.EventType) error {
	te := &fsm.TransitionError{From: current, Event: event, Allowed: fsm.AllowedEvents(current)}
	return dErrors.Wrap(te, dErrors.CodeInvalidTransition, te.Error())
}

// StartEvent records cmd.Type at cmd.StartedAt.
//
// A conflicting open sub-activity is ended at the same instant before the new
// event is appended. For end types the open start of the pair is closed and
// the marker appended. Every check runs before the log is touched, so a
// failed call leaves the driver unchanged.
func (d *Driver) StartEvent(cmd StartEventCommand, now time.Time) (*MutationResult, error) {
	if !d.IsActive() {
		return nil, dErrors.Newf(dErrors.CodeBusinessRule, "driver is %s and cannot record events", d.Status)
	}
	if !cmd.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is invalid")
	}

	open := d.openEvents()
	current := fsm.CurrentState(open)

	// The transition is checked against the state left after the auto-close,
	// so a meal can be started straight from a rest.
	effective := current
	target, hasTarget := fsm.AutoCloseTarget(cmd.Type, open)
	if hasTarget {
		remaining := make([]fsm.OpenEvent, 0, len(open))
		for _, o := range open {
			if o.Type != target {
				remaining = append(remaining, o)
			}
		}
		effective = fsm.CurrentState(remaining)
	}
	if _, err := fsm.NextState(effective, cmd.Type); err != nil {
		var te *fsm.TransitionError
		if errors.As(err, &te) {
			return nil, transitionError(current, cmd.Type)
		}
		return nil, err
	}

	event, err := NewEvent(NewEventParams{
		ID:             cmd.EventID,
		DriverID:       d.ID,
		CompanyID:      d.CompanyID,
		VehicleID:      cmd.VehicleID,
		Type:           cmd.Type,
		StartedAt:      cmd.StartedAt,
		Location:       cmd.Location,
		Source:         cmd.Source,
		DeviceTimeSkew: cmd.DeviceTimeSkew,
	}, now)
	if err != nil {
		return nil, err
	}

	var auto *closing
	if hasTarget {
		auto, err = d.planClose(d.activeEvent(target), event.StartedAt, cmd.Location, event.Source, true, now)
		if err != nil {
			return nil, err
		}
	}
	var paired *Event
	if cmd.Type.IsEnd() {
		paired = d.activeEvent(cmd.Type.StartOf())
		if paired == nil {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "no open %s to close with %s", cmd.Type.StartOf(), cmd.Type)
		}
		if err := paired.validateEnd(event.StartedAt); err != nil {
			return nil, err
		}
	}

	res := &MutationResult{Event: event, PreviousState: current}
	if auto != nil {
		d.applyClose(auto, res, now)
	}
	if paired != nil {
		d.applyClose(&closing{target: paired, marker: event}, res, now)
	} else {
		d.events = append(d.events, event)
		res.Changed = append(res.Changed, event)
	}
	res.Notifications = append(res.Notifications, EventCreated{
		EventID:   event.ID,
		DriverID:  d.ID,
		CompanyID: d.CompanyID,
		Type:      event.Type,
		StartedAt: event.StartedAt,
		Source:    event.Source,
		At:        now,
	})
	d.finish(res, cmd.Type, now)
	return res, nil
}

// EndEvent closes the active event of cmd.Type's activity; either member of
// the pair may be given. Ending the shift closes the open sub-activity first.
func (d *Driver) EndEvent(cmd EndEventCommand, now time.Time) (*MutationResult, error) {
	if !cmd.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is invalid")
	}
	start := cmd.Type.StartOf()
	active := d.activeEvent(start)
	if active == nil {
		return nil, dErrors.Newf(dErrors.CodeBusinessRule, "no active %s event to end", start)
	}
	if !cmd.EndedAt.After(active.StartedAt) {
		return nil, dErrors.Newf(dErrors.CodeBusinessRule, "%s cannot end at or before its start", start)
	}

	current := d.CurrentState()
	var auto *closing
	if start == fsm.ShiftStart {
		if target, ok := fsm.AutoCloseTarget(fsm.ShiftEnd, d.openEvents()); ok {
			var err error
			auto, err = d.planClose(d.activeEvent(target), cmd.EndedAt, cmd.Location, active.Source, true, now)
			if err != nil {
				return nil, err
			}
		}
	}
	primary, err := d.planClose(active, cmd.EndedAt, cmd.Location, active.Source, false, now)
	if err != nil {
		return nil, err
	}

	res := &MutationResult{Event: active, Marker: primary.marker, PreviousState: current}
	if auto != nil {
		d.applyClose(auto, res, now)
	}
	d.applyClose(primary, res, now)
	d.finish(res, primary.marker.Type, now)
	return res, nil
}

// EditResult is the outcome of a correction that changed something.
type EditResult struct {
	Event *Event
	// Paired is the other half of Event's start/end pair when the edit moved
	// the instant or place they share.
	Paired        *Event
	Notifications []*EventEdited
}

// EditEvent corrects an event of this driver. A start and the marker that
// closed it share the close instant, so moving one moves the other and the
// new end is checked against the paired start. A nil result means the edit
// changed nothing.
func (d *Driver) EditEvent(eventID domain.EventID, p EditParams, now time.Time) (*EditResult, error) {
	event := d.findEvent(eventID)
	if event == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "event %s not found for driver", eventID)
	}
	if p.EndedAt != nil && event.IsActive() {
		return nil, dErrors.Newf(dErrors.CodeBusinessRule, "%s is still active; end it instead of editing its end", event.Type)
	}

	updated := *event
	note, err := updated.Edit(p, now)
	if err != nil || note == nil {
		return nil, err
	}
	res := &EditResult{Event: event, Notifications: []*EventEdited{note}}

	var pairedUpdate *Event
	if paired := d.pairedRecord(event); paired != nil {
		if pp, ok := pairedEdit(event, &updated, p); ok {
			candidate := *paired
			pnote, err := candidate.Edit(pp, now)
			if err != nil {
				return nil, err
			}
			if pnote != nil {
				pairedUpdate = &candidate
				res.Paired = paired
				res.Notifications = append(res.Notifications, pnote)
			}
		}
	}

	*event = updated
	if pairedUpdate != nil {
		*res.Paired = *pairedUpdate
	}
	SortEvents(d.events)
	d.UpdatedAt = now
	return res, nil
}

// pairedRecord returns the marker that closed start e, or the start that
// marker e closed. A close instant is unique per pair type because a start
// of the same type cannot close twice at one instant.
func (d *Driver) pairedRecord(e *Event) *Event {
	other := fsm.PairType(e.Type)
	for _, candidate := range d.events {
		if candidate.Type != other {
			continue
		}
		if e.Type.IsStart() && e.EndedAt != nil && candidate.StartedAt.Equal(*e.EndedAt) {
			return candidate
		}
		if e.Type.IsEnd() && candidate.EndedAt != nil && candidate.EndedAt.Equal(e.StartedAt) {
			return candidate
		}
	}
	return nil
}

// pairedEdit derives the edit the other half of the pair needs after before
// became after.
func pairedEdit(before, after *Event, p EditParams) (EditParams, bool) {
	pp := EditParams{EditedBy: p.EditedBy, Reason: p.Reason}
	changed := false
	if before.Type.IsStart() {
		if !timesEqual(before.EndedAt, after.EndedAt) {
			at := *after.EndedAt
			pp.StartedAt = &at
			changed = true
		}
		if p.LocationEnd != nil && !locationsEqual(before.LocationEnd, after.LocationEnd) {
			pp.LocationStart = after.LocationEnd
			changed = true
		}
		return pp, changed
	}
	if !before.StartedAt.Equal(after.StartedAt) {
		at := after.StartedAt
		pp.EndedAt = &at
		changed = true
	}
	if p.LocationStart != nil && !locationsEqual(before.LocationStart, after.LocationStart) {
		pp.LocationEnd = after.LocationStart
		changed = true
	}
	return pp, changed
}

// Event returns a snapshot of one event of this driver.
func (d *Driver) Event(eventID domain.EventID) (Event, bool) {
	e := d.findEvent(eventID)
	if e == nil {
		return Event{}, false
	}
	return *e, true
}
