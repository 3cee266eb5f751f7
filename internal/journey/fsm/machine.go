// Package fsm holds the journey state machine: a fixed transition table over
// driver states and event types, plus the projections that derive the current
// state and the implicit auto-close target from a driver's open events.
//
// The machine is stateless and safe for concurrent use.
package fsm

import (
	"fmt"
	"strings"
	"time"
)

// transitions is indexed by [state][event]. The zero DriverState marks an
// absent entry.
var transitions = [numStates][numEventTypes]DriverState{
	OffShift: {
		ShiftStart: Working,
	},
	Working: {
		ShiftEnd:        OffShift,
		MealStart:       Meal,
		RestStart:       Rest,
		DisposalStart:   Disposal,
		InspectionStart: Inspection,
	},
	Meal: {
		MealEnd:  Working,
		ShiftEnd: OffShift,
	},
	Rest: {
		RestEnd:  Working,
		ShiftEnd: OffShift,
	},
	Disposal: {
		DisposalEnd: Working,
		ShiftEnd:    OffShift,
	},
	Inspection: {
		InspectionEnd: Working,
		ShiftEnd:      OffShift,
	},
}

// TransitionError reports an event type that has no table entry for the
// driver's state. Allowed lists the legal alternatives for that state.
type TransitionError struct {
	From    DriverState
	Event   EventType
	Allowed []EventType
}

func (e *TransitionError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, t := range e.Allowed {
		names[i] = t.String()
	}
	return fmt.Sprintf("cannot apply %s while %s (allowed: %s)", e.Event, e.From, strings.Join(names, ", "))
}

func lookup(state DriverState, event EventType) DriverState {
	if !state.IsValid() || !event.IsValid() {
		return 0
	}
	return transitions[state][event]
}

// CanStart reports whether event has a table entry for state.
func CanStart(event EventType, state DriverState) bool {
	return lookup(state, event) != 0
}

// NextState returns the state reached by applying event in state.
func NextState(state DriverState, event EventType) (DriverState, error) {
	next := lookup(state, event)
	if next == 0 {
		return 0, &TransitionError{From: state, Event: event, Allowed: AllowedEvents(state)}
	}
	return next, nil
}

// AllowedEvents lists the event types accepted in state, in enum order.
func AllowedEvents(state DriverState) []EventType {
	var out []EventType
	for t := ShiftStart; t <= InspectionEnd; t++ {
		if lookup(state, t) != 0 {
			out = append(out, t)
		}
	}
	return out
}

// OpenEvent is the projection of an active start event the machine needs.
type OpenEvent struct {
	Type      EventType
	StartedAt time.Time
}

// AutoCloseTarget returns the open event type that must be ended when
// newType starts. ShiftEnd closes the open sub-activity; a sub-activity start
// closes whichever other sub-activity is open. When more than one candidate
// is open the most recently started one is returned.
func AutoCloseTarget(newType EventType, open []OpenEvent) (EventType, bool) {
	if newType != ShiftEnd && !(newType.IsStart() && newType.IsSubActivity()) {
		return 0, false
	}
	idx := -1
	for i, ev := range open {
		if !ev.Type.IsStart() || !ev.Type.IsSubActivity() || ev.Type == newType {
			continue
		}
		if idx < 0 || !ev.StartedAt.Before(open[idx].StartedAt) {
			idx = i
		}
	}
	if idx < 0 {
		return 0, false
	}
	return open[idx].Type, true
}

// CurrentState derives the driver state from open events. Without an open
// ShiftStart the driver is off shift. Otherwise the most recently started
// open sub-activity decides; on equal timestamps the later slice element wins.
func CurrentState(open []OpenEvent) DriverState {
	onShift := false
	idx := -1
	for i, ev := range open {
		switch {
		case ev.Type == ShiftStart:
			onShift = true
		case ev.Type.IsStart() && ev.Type.IsSubActivity():
			if idx < 0 || !ev.StartedAt.Before(open[idx].StartedAt) {
				idx = i
			}
		}
	}
	if !onShift {
		return OffShift
	}
	if idx < 0 {
		return Working
	}
	return subState(open[idx].Type)
}

func subState(start EventType) DriverState {
	switch start {
	case MealStart:
		return Meal
	case RestStart:
		return Rest
	case DisposalStart:
		return Disposal
	case InspectionStart:
		return Inspection
	default:
		return Working
	}
}
