package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "jornada/pkg/domain-errors"
)

// Typed identifiers keep driver, company and event IDs from being swapped at
// call sites. Each wraps a UUID; the zero value is the nil UUID and is never a
// valid identity.
//
// Usage: construct via the Parse* functions at trust boundaries (handlers,
// store rows); use New* to mint fresh identities inside the domain.
type (
	DriverID     uuid.UUID
	CompanyID    uuid.UUID
	VehicleID    uuid.UUID
	EventID      uuid.UUID
	UserID       uuid.UUID
	AssignmentID uuid.UUID
)

// maxIDLength bounds input before handing it to the UUID parser.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be the nil UUID")
	}
	return u, nil
}

func ParseDriverID(s string) (DriverID, error) {
	u, err := parseUUID("driver_id", s)
	return DriverID(u), err
}

func ParseCompanyID(s string) (CompanyID, error) {
	u, err := parseUUID("company_id", s)
	return CompanyID(u), err
}

func ParseVehicleID(s string) (VehicleID, error) {
	u, err := parseUUID("vehicle_id", s)
	return VehicleID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID("event_id", s)
	return EventID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user_id", s)
	return UserID(u), err
}

func ParseAssignmentID(s string) (AssignmentID, error) {
	u, err := parseUUID("assignment_id", s)
	return AssignmentID(u), err
}

func NewDriverID() DriverID         { return DriverID(uuid.New()) }
func NewCompanyID() CompanyID       { return CompanyID(uuid.New()) }
func NewVehicleID() VehicleID       { return VehicleID(uuid.New()) }
func NewEventID() EventID           { return EventID(uuid.New()) }
func NewUserID() UserID             { return UserID(uuid.New()) }
func NewAssignmentID() AssignmentID { return AssignmentID(uuid.New()) }

func (id DriverID) String() string     { return uuid.UUID(id).String() }
func (id CompanyID) String() string    { return uuid.UUID(id).String() }
func (id VehicleID) String() string    { return uuid.UUID(id).String() }
func (id EventID) String() string      { return uuid.UUID(id).String() }
func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id AssignmentID) String() string { return uuid.UUID(id).String() }

func (id DriverID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CompanyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id VehicleID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AssignmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialise as plain UUID strings in JSON.
func (id DriverID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id CompanyID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id VehicleID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *DriverID) UnmarshalText(b []byte) error {
	parsed, err := ParseDriverID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *VehicleID) UnmarshalText(b []byte) error {
	parsed, err := ParseVehicleID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *CompanyID) UnmarshalText(b []byte) error {
	parsed, err := ParseCompanyID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
