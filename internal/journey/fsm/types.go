package fsm

import (
	"strings"

	dErrors "jornada/pkg/domain-errors"
)

// EventType identifies one of the ten journey markers. The zero value is
// invalid so that a missing type is never mistaken for ShiftStart.
type EventType uint8

const (
	ShiftStart EventType = iota + 1
	ShiftEnd
	MealStart
	MealEnd
	RestStart
	RestEnd
	DisposalStart
	DisposalEnd
	InspectionStart
	InspectionEnd
)

const numEventTypes = int(InspectionEnd) + 1

var eventTypeNames = [numEventTypes]string{
	ShiftStart:      "SHIFT_START",
	ShiftEnd:        "SHIFT_END",
	MealStart:       "MEAL_START",
	MealEnd:         "MEAL_END",
	RestStart:       "REST_START",
	RestEnd:         "REST_END",
	DisposalStart:   "DISPOSAL_START",
	DisposalEnd:     "DISPOSAL_END",
	InspectionStart: "INSPECTION_START",
	InspectionEnd:   "INSPECTION_END",
}

// AllEventTypes returns every valid event type in declaration order.
func AllEventTypes() []EventType {
	out := make([]EventType, 0, numEventTypes-1)
	for t := ShiftStart; t <= InspectionEnd; t++ {
		out = append(out, t)
	}
	return out
}

func (t EventType) IsValid() bool {
	return t >= ShiftStart && t <= InspectionEnd
}

func (t EventType) String() string {
	if !t.IsValid() {
		return "UNKNOWN"
	}
	return eventTypeNames[t]
}

// IsStart reports whether t opens an activity. Start and end types alternate
// in the enum, so odd ordinals are starts.
func (t EventType) IsStart() bool {
	return t.IsValid() && t%2 == 1
}

func (t EventType) IsEnd() bool {
	return t.IsValid() && t%2 == 0
}

// IsSubActivity reports whether t belongs to meal, rest, disposal or inspection.
func (t EventType) IsSubActivity() bool {
	return t.IsValid() && t != ShiftStart && t != ShiftEnd
}

// Pair returns the matching start/end type of t.
func (t EventType) Pair() (EventType, error) {
	if !t.IsValid() {
		return 0, dErrors.Newf(dErrors.CodeInvariantViolation, "event type %d has no pair", uint8(t))
	}
	if t.IsStart() {
		return t + 1, nil
	}
	return t - 1, nil
}

// PairType is Pair for callers holding a well-formed EventType. It panics on
// values outside the enum.
func PairType(t EventType) EventType {
	p, err := t.Pair()
	if err != nil {
		panic(err)
	}
	return p
}

// StartOf returns the start type of t's activity.
func (t EventType) StartOf() EventType {
	if t.IsEnd() {
		return t - 1
	}
	return t
}

// ParseEventType accepts the canonical upper snake case name, case-insensitively.
func ParseEventType(s string) (EventType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	for t := ShiftStart; t <= InspectionEnd; t++ {
		if eventTypeNames[t] == name {
			return t, nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeValidation, "unknown event type: %s", s)
}

func (t EventType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "cannot marshal event type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(b []byte) error {
	parsed, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DriverState is derived from a driver's open events and never stored.
type DriverState uint8

const (
	OffShift DriverState = iota + 1
	Working
	Meal
	Rest
	Disposal
	Inspection
)

const numStates = int(Inspection) + 1

var stateNames = [numStates]string{
	OffShift:   "OFF_SHIFT",
	Working:    "WORKING",
	Meal:       "MEAL",
	Rest:       "REST",
	Disposal:   "DISPOSAL",
	Inspection: "INSPECTION",
}

// AllStates returns every valid state in declaration order.
func AllStates() []DriverState {
	out := make([]DriverState, 0, numStates-1)
	for s := OffShift; s <= Inspection; s++ {
		out = append(out, s)
	}
	return out
}

func (s DriverState) IsValid() bool {
	return s >= OffShift && s <= Inspection
}

func (s DriverState) String() string {
	if !s.IsValid() {
		return "UNKNOWN"
	}
	return stateNames[s]
}

func (s DriverState) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "cannot marshal driver state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func ParseDriverState(v string) (DriverState, error) {
	name := strings.ToUpper(strings.TrimSpace(v))
	for s := OffShift; s <= Inspection; s++ {
		if stateNames[s] == name {
			return s, nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeValidation, "unknown driver state: %s", v)
}

func (s *DriverState) UnmarshalText(b []byte) error {
	parsed, err := ParseDriverState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
