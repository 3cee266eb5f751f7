package models

import (
	"regexp"
	"strings"
	"time"

	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

// Accepts both the legacy ABC1234 layout and the Mercosul ABC1D23 layout.
var platePattern = regexp.MustCompile(`^[A-Z]{3}[0-9][A-Z0-9][0-9]{2}$`)

const minVehicleYear = 1900

// NormalizePlate upper-cases a plate and drops dashes and spaces.
func NormalizePlate(plate string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.ToUpper(strings.TrimSpace(plate)))
}

// Vehicle is a company vehicle and the history of drivers assigned to it.
//
// Invariants:
//   - Plate is normalised and matches a Brazilian plate layout
//   - Year is in [1900, current year + 1]
//   - At most one assignment is active at a time
type Vehicle struct {
	ID          domain.VehicleID `json:"id"`
	CompanyID   domain.CompanyID `json:"company_id"`
	Plate       string           `json:"plate"`
	Model       string           `json:"model"`
	Year        int              `json:"year"`
	Active      bool             `json:"active"`
	Assignments []*Assignment    `json:"assignments,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func NewVehicle(vehicleID domain.VehicleID, companyID domain.CompanyID, plate, model string, year int, now time.Time) (*Vehicle, error) {
	if vehicleID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "vehicle id is required")
	}
	if companyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "company id is required")
	}
	normalized, err := validateVehicleInfo(plate, model, year, now)
	if err != nil {
		return nil, err
	}
	return &Vehicle{
		ID:        vehicleID,
		CompanyID: companyID,
		Plate:     normalized,
		Model:     strings.TrimSpace(model),
		Year:      year,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func validateVehicleInfo(plate, model string, year int, now time.Time) (string, error) {
	normalized := NormalizePlate(plate)
	if !platePattern.MatchString(normalized) {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid plate: %s", plate)
	}
	if strings.TrimSpace(model) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "vehicle model cannot be empty")
	}
	if year < minVehicleYear || year > now.Year()+1 {
		return "", dErrors.Newf(dErrors.CodeValidation, "vehicle year must be between %d and %d", minVehicleYear, now.Year()+1)
	}
	return normalized, nil
}

func (v *Vehicle) UpdateInfo(plate, model string, year int, now time.Time) error {
	normalized, err := validateVehicleInfo(plate, model, year, now)
	if err != nil {
		return err
	}
	v.Plate = normalized
	v.Model = strings.TrimSpace(model)
	v.Year = year
	v.UpdatedAt = now
	return nil
}

func (v *Vehicle) Activate(now time.Time) {
	v.Active = true
	v.UpdatedAt = now
}

// Deactivate also ends the active assignment, if any.
func (v *Vehicle) Deactivate(now time.Time) {
	if a := v.CurrentAssignment(); a != nil && now.After(a.StartAt) {
		_ = a.End(now)
	}
	v.Active = false
	v.UpdatedAt = now
}

// CurrentAssignment returns the open assignment or nil.
func (v *Vehicle) CurrentAssignment() *Assignment {
	for i := len(v.Assignments) - 1; i >= 0; i-- {
		if v.Assignments[i].IsActive() {
			return v.Assignments[i]
		}
	}
	return nil
}

// AssignDriver opens a new assignment starting at startAt.
func (v *Vehicle) AssignDriver(assignmentID domain.AssignmentID, driverID domain.DriverID, startAt, now time.Time) (*Assignment, error) {
	if !v.Active {
		return nil, dErrors.New(dErrors.CodeBusinessRule, "inactive vehicle cannot be assigned")
	}
	if v.CurrentAssignment() != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "vehicle already has an active assignment")
	}
	a, err := NewAssignment(assignmentID, v.ID, driverID, startAt)
	if err != nil {
		return nil, err
	}
	v.Assignments = append(v.Assignments, a)
	v.UpdatedAt = now
	return a, nil
}

// Assignment links a driver to a vehicle over [StartAt, EndAt).
type Assignment struct {
	ID        domain.AssignmentID `json:"id"`
	VehicleID domain.VehicleID    `json:"vehicle_id"`
	DriverID  domain.DriverID     `json:"driver_id"`
	StartAt   time.Time           `json:"start_at"`
	EndAt     *time.Time          `json:"end_at,omitempty"`
}

func NewAssignment(assignmentID domain.AssignmentID, vehicleID domain.VehicleID, driverID domain.DriverID, startAt time.Time) (*Assignment, error) {
	if assignmentID.IsNil() {
		assignmentID = domain.NewAssignmentID()
	}
	if vehicleID.IsNil() || driverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "assignment requires a vehicle and a driver")
	}
	if startAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "assignment start is required")
	}
	return &Assignment{ID: assignmentID, VehicleID: vehicleID, DriverID: driverID, StartAt: startAt.UTC()}, nil
}

func (a *Assignment) IsActive() bool {
	return a.EndAt == nil
}

func (a *Assignment) End(endAt time.Time) error {
	if a.EndAt != nil {
		return dErrors.New(dErrors.CodeBusinessRule, "assignment already ended")
	}
	if !endAt.After(a.StartAt) {
		return dErrors.New(dErrors.CodeBusinessRule, "assignment cannot end at or before its start")
	}
	end := endAt.UTC()
	a.EndAt = &end
	return nil
}

// Duration measures an open assignment up to now.
func (a *Assignment) Duration(now time.Time) time.Duration {
	if a.EndAt != nil {
		return a.EndAt.Sub(a.StartAt)
	}
	return now.Sub(a.StartAt)
}
