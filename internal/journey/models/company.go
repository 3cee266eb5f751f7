package models

import (
	"strings"
	"time"

	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

// CompanySettings are the labour limits the workday calculator checks.
type CompanySettings struct {
	MaxDailyWork            time.Duration `json:"max_daily_work"`
	MinRestBetweenShifts    time.Duration `json:"min_rest_between_shifts"`
	MaxContinuousWork       time.Duration `json:"max_continuous_work"`
	RequireLocationOnEvents bool          `json:"require_location_on_events"`
	ClockSkewTolerance      time.Duration `json:"clock_skew_tolerance"`
}

func DefaultCompanySettings() CompanySettings {
	return CompanySettings{
		MaxDailyWork:            8 * time.Hour,
		MinRestBetweenShifts:    11 * time.Hour,
		MaxContinuousWork:       4 * time.Hour,
		RequireLocationOnEvents: true,
		ClockSkewTolerance:      5 * time.Minute,
	}
}

func (s CompanySettings) Validate() error {
	if s.MaxDailyWork <= 0 {
		return dErrors.New(dErrors.CodeValidation, "max daily work must be positive")
	}
	if s.MinRestBetweenShifts <= 0 {
		return dErrors.New(dErrors.CodeValidation, "min rest between shifts must be positive")
	}
	if s.MaxContinuousWork <= 0 {
		return dErrors.New(dErrors.CodeValidation, "max continuous work must be positive")
	}
	if s.ClockSkewTolerance < 0 {
		return dErrors.New(dErrors.CodeValidation, "clock skew tolerance cannot be negative")
	}
	return nil
}

// DriverRef is the company's view of a driver: identity and CPF only.
type DriverRef struct {
	ID  domain.DriverID `json:"id"`
	Cpf domain.Cpf      `json:"cpf"`
}

type VehicleRef struct {
	ID    domain.VehicleID `json:"id"`
	Plate string           `json:"plate"`
}

// Company owns the settings applied to its drivers and references its
// drivers and vehicles by identity.
//
// Invariants:
//   - Name is non-empty; Cnpj is a valid CNPJ
//   - Settings pass Validate
//   - Driver CPFs and vehicle plates are unique within the company
//   - Inactive companies cannot take on drivers or vehicles
type Company struct {
	ID        domain.CompanyID `json:"id"`
	Name      string           `json:"name"`
	Cnpj      domain.Cnpj      `json:"cnpj"`
	Settings  CompanySettings  `json:"settings"`
	Active    bool             `json:"active"`
	Drivers   []DriverRef      `json:"drivers"`
	Vehicles  []VehicleRef     `json:"vehicles"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func NewCompany(companyID domain.CompanyID, name string, cnpj domain.Cnpj, settings CompanySettings, now time.Time) (*Company, error) {
	if companyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "company id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "company name cannot be empty")
	}
	if cnpj.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "company cnpj is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Company{
		ID:        companyID,
		Name:      name,
		Cnpj:      cnpj,
		Settings:  settings,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (c *Company) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "company name cannot be empty")
	}
	c.Name = name
	c.UpdatedAt = now
	return nil
}

func (c *Company) UpdateSettings(settings CompanySettings, now time.Time) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	c.Settings = settings
	c.UpdatedAt = now
	return nil
}

func (c *Company) Activate(now time.Time) {
	c.Active = true
	c.UpdatedAt = now
}

func (c *Company) Deactivate(now time.Time) {
	c.Active = false
	c.UpdatedAt = now
}

// AddDriver registers d with the company.
func (c *Company) AddDriver(d *Driver, now time.Time) error {
	if !c.Active {
		return dErrors.New(dErrors.CodeBusinessRule, "inactive company cannot register drivers")
	}
	if d.CompanyID != c.ID {
		return dErrors.New(dErrors.CodeBusinessRule, "driver belongs to another company")
	}
	for _, ref := range c.Drivers {
		if ref.Cpf == d.Cpf {
			return dErrors.Newf(dErrors.CodeConflict, "a driver with CPF %s already exists", d.Cpf)
		}
		if ref.ID == d.ID {
			return dErrors.New(dErrors.CodeConflict, "driver already registered")
		}
	}
	c.Drivers = append(c.Drivers, DriverRef{ID: d.ID, Cpf: d.Cpf})
	c.UpdatedAt = now
	return nil
}

// AddVehicle registers v with the company.
func (c *Company) AddVehicle(v *Vehicle, now time.Time) error {
	if !c.Active {
		return dErrors.New(dErrors.CodeBusinessRule, "inactive company cannot register vehicles")
	}
	if v.CompanyID != c.ID {
		return dErrors.New(dErrors.CodeBusinessRule, "vehicle belongs to another company")
	}
	for _, ref := range c.Vehicles {
		if ref.Plate == v.Plate {
			return dErrors.Newf(dErrors.CodeConflict, "a vehicle with plate %s already exists", v.Plate)
		}
	}
	c.Vehicles = append(c.Vehicles, VehicleRef{ID: v.ID, Plate: v.Plate})
	c.UpdatedAt = now
	return nil
}
