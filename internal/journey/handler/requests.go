package handler

import (
	"strings"
	"time"

	"jornada/internal/journey/fsm"
	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

// SettingsRequest carries company labour limits in whole minutes.
type SettingsRequest struct {
	MaxDailyWorkMinutes         int  `json:"max_daily_work_minutes"`
	MinRestBetweenShiftsMinutes int  `json:"min_rest_between_shifts_minutes"`
	MaxContinuousWorkMinutes    int  `json:"max_continuous_work_minutes"`
	RequireLocationOnEvents     bool `json:"require_location_on_events"`
	ClockSkewToleranceMinutes   int  `json:"clock_skew_tolerance_minutes"`
}

func (r *SettingsRequest) Validate() error {
	return r.toSettings().Validate()
}

func (r *SettingsRequest) toSettings() models.CompanySettings {
	return models.CompanySettings{
		MaxDailyWork:            time.Duration(r.MaxDailyWorkMinutes) * time.Minute,
		MinRestBetweenShifts:    time.Duration(r.MinRestBetweenShiftsMinutes) * time.Minute,
		MaxContinuousWork:       time.Duration(r.MaxContinuousWorkMinutes) * time.Minute,
		RequireLocationOnEvents: r.RequireLocationOnEvents,
		ClockSkewTolerance:      time.Duration(r.ClockSkewToleranceMinutes) * time.Minute,
	}
}

// RegisterCompanyRequest is the body of POST /companies. Settings are
// optional; the server defaults apply when omitted.
type RegisterCompanyRequest struct {
	Name     string           `json:"name"`
	Cnpj     string           `json:"cnpj"`
	Settings *SettingsRequest `json:"settings,omitempty"`

	settings *models.CompanySettings
}

func (r *RegisterCompanyRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(r.Cnpj) == "" {
		return dErrors.New(dErrors.CodeValidation, "cnpj is required")
	}
	if r.Settings != nil {
		if err := r.Settings.Validate(); err != nil {
			return err
		}
		settings := r.Settings.toSettings()
		r.settings = &settings
	}
	return nil
}

// RegisterDriverRequest is the body of POST /drivers.
type RegisterDriverRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Cpf       string `json:"cpf"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`

	companyID domain.CompanyID
}

func (r *RegisterDriverRequest) Validate() error {
	companyID, err := domain.ParseCompanyID(r.CompanyID)
	if err != nil {
		return err
	}
	r.companyID = companyID
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(r.Cpf) == "" {
		return dErrors.New(dErrors.CodeValidation, "cpf is required")
	}
	return nil
}

// ChangeStatusRequest is the body of PATCH /drivers/{driverID}/status.
type ChangeStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`

	status models.DriverStatus
}

func (r *ChangeStatusRequest) Validate() error {
	status, err := models.ParseDriverStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = status
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

// StartEventRequest is the body of POST /drivers/{driverID}/events. The
// client may pick the event ID so retries stay idempotent.
type StartEventRequest struct {
	EventID        string           `json:"event_id,omitempty"`
	Type           string           `json:"type"`
	StartedAt      *time.Time       `json:"started_at"`
	Location       *domain.Location `json:"location,omitempty"`
	Source         string           `json:"source,omitempty"`
	VehicleID      string           `json:"vehicle_id,omitempty"`
	DeviceTimeSkew *int64           `json:"device_time_skew_ms,omitempty"`

	cmd models.StartEventCommand
}

func (r *StartEventRequest) Validate() error {
	eventType, err := fsm.ParseEventType(r.Type)
	if err != nil {
		return err
	}
	if r.StartedAt == nil || r.StartedAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "started_at is required")
	}
	cmd := models.StartEventCommand{
		Type:      eventType,
		StartedAt: *r.StartedAt,
		Location:  r.Location,
		Source:    models.EventSource(strings.TrimSpace(r.Source)),
	}
	if cmd.Source != "" && !cmd.Source.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "invalid source: %s", r.Source)
	}
	if r.EventID != "" {
		if cmd.EventID, err = domain.ParseEventID(r.EventID); err != nil {
			return err
		}
	}
	if r.VehicleID != "" {
		vehicleID, err := domain.ParseVehicleID(r.VehicleID)
		if err != nil {
			return err
		}
		cmd.VehicleID = &vehicleID
	}
	if r.DeviceTimeSkew != nil {
		skew := time.Duration(*r.DeviceTimeSkew) * time.Millisecond
		cmd.DeviceTimeSkew = &skew
	}
	r.cmd = cmd
	return nil
}

// EndEventRequest is the body of POST /drivers/{driverID}/events/end.
type EndEventRequest struct {
	Type     string           `json:"type"`
	EndedAt  *time.Time       `json:"ended_at"`
	Location *domain.Location `json:"location,omitempty"`

	cmd models.EndEventCommand
}

func (r *EndEventRequest) Validate() error {
	eventType, err := fsm.ParseEventType(r.Type)
	if err != nil {
		return err
	}
	if r.EndedAt == nil || r.EndedAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "ended_at is required")
	}
	r.cmd = models.EndEventCommand{Type: eventType, EndedAt: *r.EndedAt, Location: r.Location}
	return nil
}

// EditEventRequest is the body of PATCH /drivers/{driverID}/events/{eventID}.
// Omitted fields are left untouched. The editor comes from the back-office
// session, not the body.
type EditEventRequest struct {
	Reason        string           `json:"reason"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	LocationStart *domain.Location `json:"location_start,omitempty"`
	LocationEnd   *domain.Location `json:"location_end,omitempty"`
}

func (r *EditEventRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if r.StartedAt == nil && r.EndedAt == nil && r.LocationStart == nil && r.LocationEnd == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one field must be edited")
	}
	return nil
}

func (r *EditEventRequest) params(editor domain.UserID) models.EditParams {
	return models.EditParams{
		EditedBy:      editor,
		Reason:        r.Reason,
		StartedAt:     r.StartedAt,
		EndedAt:       r.EndedAt,
		LocationStart: r.LocationStart,
		LocationEnd:   r.LocationEnd,
	}
}

// RecalculateRequest is the body of POST /drivers/{driverID}/workday/recalculate.
type RecalculateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`

	from time.Time
	to   time.Time
}

func (r *RecalculateRequest) Validate() error {
	from, err := parseDate("from", r.From)
	if err != nil {
		return err
	}
	to, err := parseDate("to", r.To)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}
	r.from, r.to = from, to
	return nil
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s is required", field)
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s must be a date in YYYY-MM-DD format", field)
	}
	return d, nil
}
