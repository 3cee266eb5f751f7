package handler

import (
	"time"

	"jornada/internal/journey/fsm"
	"jornada/internal/journey/models"
	"jornada/internal/journey/service"
	"jornada/pkg/domain"
)

type CompanyResponse struct {
	ID          domain.CompanyID `json:"id"`
	Name        string           `json:"name"`
	Cnpj        string           `json:"cnpj"`
	Active      bool             `json:"active"`
	Settings    SettingsRequest  `json:"settings"`
	DriverCount int              `json:"driver_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func toCompanyResponse(c *models.Company) CompanyResponse {
	return CompanyResponse{
		ID:     c.ID,
		Name:   c.Name,
		Cnpj:   c.Cnpj.Formatted(),
		Active: c.Active,
		Settings: SettingsRequest{
			MaxDailyWorkMinutes:         int(minutes(c.Settings.MaxDailyWork)),
			MinRestBetweenShiftsMinutes: int(minutes(c.Settings.MinRestBetweenShifts)),
			MaxContinuousWorkMinutes:    int(minutes(c.Settings.MaxContinuousWork)),
			RequireLocationOnEvents:     c.Settings.RequireLocationOnEvents,
			ClockSkewToleranceMinutes:   int(minutes(c.Settings.ClockSkewTolerance)),
		},
		DriverCount: len(c.Drivers),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type DriverResponse struct {
	ID        domain.DriverID  `json:"id"`
	CompanyID domain.CompanyID `json:"company_id"`
	Name      string           `json:"name"`
	Cpf       string           `json:"cpf"`
	Phone     string           `json:"phone,omitempty"`
	Email     string           `json:"email,omitempty"`
	Status    string           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// RegisterDriverResponse carries the temporary password exactly once.
type RegisterDriverResponse struct {
	DriverResponse
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

func toDriverResponse(d *models.Driver) DriverResponse {
	return DriverResponse{
		ID:        d.ID,
		CompanyID: d.CompanyID,
		Name:      d.Name,
		Cpf:       d.Cpf.Formatted(),
		Phone:     d.Phone,
		Email:     d.Email,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type EventResponse struct {
	ID               domain.EventID    `json:"id"`
	DriverID         domain.DriverID   `json:"driver_id"`
	VehicleID        *domain.VehicleID `json:"vehicle_id,omitempty"`
	Type             fsm.EventType     `json:"type"`
	StartedAt        time.Time         `json:"started_at"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
	DurationSeconds  *int64            `json:"duration_seconds,omitempty"`
	LocationStart    *domain.Location  `json:"location_start,omitempty"`
	LocationEnd      *domain.Location  `json:"location_end,omitempty"`
	Source           string            `json:"source"`
	DeviceTimeSkewMs *int64            `json:"device_time_skew_ms,omitempty"`
	EditedBy         *domain.UserID    `json:"edited_by,omitempty"`
	EditReason       string            `json:"edit_reason,omitempty"`
}

func toEventResponse(e *models.Event) *EventResponse {
	if e == nil {
		return nil
	}
	resp := &EventResponse{
		ID:            e.ID,
		DriverID:      e.DriverID,
		VehicleID:     e.VehicleID,
		Type:          e.Type,
		StartedAt:     e.StartedAt,
		EndedAt:       e.EndedAt,
		LocationStart: e.LocationStart,
		LocationEnd:   e.LocationEnd,
		Source:        string(e.Source),
		EditedBy:      e.EditedBy,
		EditReason:    e.EditReason,
	}
	if d, ok := e.Duration(); ok {
		secs := int64(d / time.Second)
		resp.DurationSeconds = &secs
	}
	if e.DeviceTimeSkew != nil {
		ms := e.DeviceTimeSkew.Milliseconds()
		resp.DeviceTimeSkewMs = &ms
	}
	return resp
}

// MutationResponse answers start and end requests with the resulting state
// so the app can redraw without a second round trip.
type MutationResponse struct {
	Event         *EventResponse  `json:"event"`
	Marker        *EventResponse  `json:"marker,omitempty"`
	AutoClosed    *EventResponse  `json:"auto_closed,omitempty"`
	PreviousState fsm.DriverState `json:"previous_state"`
	State         fsm.DriverState `json:"state"`
	AllowedEvents []fsm.EventType `json:"allowed_events"`
}

func toMutationResponse(res *models.MutationResult) MutationResponse {
	return MutationResponse{
		Event:         toEventResponse(res.Event),
		Marker:        toEventResponse(res.Marker),
		AutoClosed:    toEventResponse(res.AutoClosed),
		PreviousState: res.PreviousState,
		State:         res.State,
		AllowedEvents: fsm.AllowedEvents(res.State),
	}
}

type StateResponse struct {
	DriverID      domain.DriverID  `json:"driver_id"`
	State         fsm.DriverState  `json:"state"`
	AllowedEvents []fsm.EventType  `json:"allowed_events"`
	ActiveEvents  []*EventResponse `json:"active_events"`
}

func toStateResponse(v *service.StateView) StateResponse {
	active := make([]*EventResponse, len(v.Active))
	for i := range v.Active {
		active[i] = toEventResponse(&v.Active[i])
	}
	return StateResponse{
		DriverID:      v.DriverID,
		State:         v.State,
		AllowedEvents: v.Allowed,
		ActiveEvents:  active,
	}
}

// WorkdayResponse reports totals in whole minutes, the unit used on
// timesheets.
type WorkdayResponse struct {
	DriverID                     domain.DriverID `json:"driver_id"`
	Date                         string          `json:"date"`
	TotalWorkedMinutes           int64           `json:"total_worked_minutes"`
	TotalRestMinutes             int64           `json:"total_rest_minutes"`
	TotalMealMinutes             int64           `json:"total_meal_minutes"`
	TotalDisposalMinutes         int64           `json:"total_disposal_minutes"`
	LongestContinuousWorkMinutes int64           `json:"longest_continuous_work_minutes"`
	Anomalies                    []string        `json:"anomalies"`
	CalculatedAt                 time.Time       `json:"calculated_at"`
}

func toWorkdayResponse(s *models.WorkdaySummary) WorkdayResponse {
	anomalies := s.Anomalies
	if anomalies == nil {
		anomalies = []string{}
	}
	return WorkdayResponse{
		DriverID:                     s.DriverID,
		Date:                         s.Date,
		TotalWorkedMinutes:           minutes(s.TotalWorked),
		TotalRestMinutes:             minutes(s.TotalRest),
		TotalMealMinutes:             minutes(s.TotalMeal),
		TotalDisposalMinutes:         minutes(s.TotalDisposal),
		LongestContinuousWorkMinutes: minutes(s.LongestContinuousWork),
		Anomalies:                    anomalies,
		CalculatedAt:                 s.CalculatedAt,
	}
}

func minutes(d time.Duration) int64 {
	return int64(d / time.Minute)
}

// TransitionErrorResponse extends the standard error body with the moves
// that are legal from the driver's current state.
type TransitionErrorResponse struct {
	Error         string          `json:"error"`
	Description   string          `json:"error_description"`
	CurrentState  fsm.DriverState `json:"current_state"`
	AllowedEvents []fsm.EventType `json:"allowed_events"`
}
