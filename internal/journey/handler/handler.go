package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"jornada/internal/journey/fsm"
	"jornada/internal/journey/models"
	"jornada/internal/journey/service"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
	"jornada/pkg/platform/httputil"
	"jornada/pkg/requestcontext"
)

// Service defines the journey operations exposed over HTTP.
type Service interface {
	RegisterCompany(ctx context.Context, cmd service.RegisterCompanyCommand) (*models.Company, error)
	GetCompany(ctx context.Context, companyID domain.CompanyID) (*models.Company, error)
	UpdateCompanySettings(ctx context.Context, companyID domain.CompanyID, settings models.CompanySettings) (*models.Company, error)
	RegisterDriver(ctx context.Context, cmd service.RegisterDriverCommand) (*service.RegisterDriverResult, error)
	GetDriver(ctx context.Context, driverID domain.DriverID) (*models.Driver, error)
	ChangeDriverStatus(ctx context.Context, driverID domain.DriverID, status models.DriverStatus, reason string) (*models.Driver, error)
	CurrentState(ctx context.Context, driverID domain.DriverID) (*service.StateView, error)
	StartEvent(ctx context.Context, driverID domain.DriverID, cmd models.StartEventCommand) (*models.MutationResult, error)
	EndEvent(ctx context.Context, driverID domain.DriverID, cmd models.EndEventCommand) (*models.MutationResult, error)
	EditEvent(ctx context.Context, driverID domain.DriverID, eventID domain.EventID, p models.EditParams) (*models.Event, error)
	Workday(ctx context.Context, driverID domain.DriverID, date time.Time) (*models.WorkdaySummary, error)
	RecalculateRange(ctx context.Context, driverID domain.DriverID, from, to time.Time) ([]*models.WorkdaySummary, error)
	Location() *time.Location
}

// Handler wires journey endpoints to the journey service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the endpoints used by the driver app.
func (h *Handler) Register(r chi.Router) {
	r.Get("/drivers/{driverID}", h.HandleGetDriver)
	r.Get("/drivers/{driverID}/state", h.HandleCurrentState)
	r.Post("/drivers/{driverID}/events", h.HandleStartEvent)
	r.Post("/drivers/{driverID}/events/end", h.HandleEndEvent)
	r.Get("/drivers/{driverID}/workday", h.HandleWorkday)
}

// RegisterBackOffice mounts the endpoints reserved for company staff. The
// caller is expected to wrap r with the back-office middleware, which puts
// the acting user on the context.
func (h *Handler) RegisterBackOffice(r chi.Router) {
	r.Post("/companies", h.HandleRegisterCompany)
	r.Get("/companies/{companyID}", h.HandleGetCompany)
	r.Put("/companies/{companyID}/settings", h.HandleUpdateSettings)
	r.Post("/drivers", h.HandleRegisterDriver)
	r.Patch("/drivers/{driverID}/status", h.HandleChangeStatus)
	r.Patch("/drivers/{driverID}/events/{eventID}", h.HandleEditEvent)
	r.Post("/drivers/{driverID}/workday/recalculate", h.HandleRecalculate)
}

// HandleRegisterCompany handles POST /companies.
func (h *Handler) HandleRegisterCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterCompanyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	company, err := h.service.RegisterCompany(ctx, service.RegisterCompanyCommand{
		Name:     req.Name,
		Cnpj:     req.Cnpj,
		Settings: req.settings,
	})
	if err != nil {
		h.fail(ctx, w, "company registration failed", err)
		return
	}

	h.logger.InfoContext(ctx, "company registered",
		"request_id", requestID,
		"company_id", company.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, toCompanyResponse(company))
}

// HandleGetCompany handles GET /companies/{companyID}.
func (h *Handler) HandleGetCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	companyID, err := domain.ParseCompanyID(chi.URLParam(r, "companyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	company, err := h.service.GetCompany(ctx, companyID)
	if err != nil {
		h.fail(ctx, w, "get company failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCompanyResponse(company))
}

// HandleUpdateSettings handles PUT /companies/{companyID}/settings.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	companyID, err := domain.ParseCompanyID(chi.URLParam(r, "companyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SettingsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	company, err := h.service.UpdateCompanySettings(ctx, companyID, req.toSettings())
	if err != nil {
		h.fail(ctx, w, "company settings update failed", err)
		return
	}

	h.logger.InfoContext(ctx, "company settings updated",
		"request_id", requestID,
		"company_id", companyID,
		"actor_id", requestcontext.ActorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toCompanyResponse(company))
}

// HandleRegisterDriver handles POST /drivers.
func (h *Handler) HandleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterDriverRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.RegisterDriver(ctx, service.RegisterDriverCommand{
		CompanyID: req.companyID,
		Name:      req.Name,
		Cpf:       req.Cpf,
		Phone:     req.Phone,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		h.fail(ctx, w, "driver registration failed", err)
		return
	}

	h.logger.InfoContext(ctx, "driver registered",
		"request_id", requestID,
		"driver_id", res.Driver.ID,
		"company_id", res.Driver.CompanyID,
	)
	httputil.WriteJSON(w, http.StatusCreated, RegisterDriverResponse{
		DriverResponse:    toDriverResponse(res.Driver),
		TemporaryPassword: res.TemporaryPassword,
	})
}

// HandleGetDriver handles GET /drivers/{driverID}.
func (h *Handler) HandleGetDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}
	driver, err := h.service.GetDriver(ctx, driverID)
	if err != nil {
		h.fail(ctx, w, "get driver failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDriverResponse(driver))
}

// HandleChangeStatus handles PATCH /drivers/{driverID}/status.
func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	driver, err := h.service.ChangeDriverStatus(ctx, driverID, req.status, req.Reason)
	if err != nil {
		h.fail(ctx, w, "driver status change failed", err)
		return
	}

	h.logger.InfoContext(ctx, "driver status changed",
		"request_id", requestID,
		"driver_id", driverID,
		"status", driver.Status,
		"actor_id", requestcontext.ActorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toDriverResponse(driver))
}

// HandleCurrentState handles GET /drivers/{driverID}/state.
func (h *Handler) HandleCurrentState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}
	view, err := h.service.CurrentState(ctx, driverID)
	if err != nil {
		h.fail(ctx, w, "current state lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStateResponse(view))
}

// HandleStartEvent handles POST /drivers/{driverID}/events.
func (h *Handler) HandleStartEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StartEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.StartEvent(ctx, driverID, req.cmd)
	if err != nil {
		h.fail(ctx, w, "start event failed", err)
		return
	}

	h.logger.InfoContext(ctx, "event recorded",
		"request_id", requestID,
		"driver_id", driverID,
		"type", req.cmd.Type,
		"state", res.State,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toMutationResponse(res))
}

// HandleEndEvent handles POST /drivers/{driverID}/events/end.
func (h *Handler) HandleEndEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EndEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.EndEvent(ctx, driverID, req.cmd)
	if err != nil {
		h.fail(ctx, w, "end event failed", err)
		return
	}

	h.logger.InfoContext(ctx, "event ended",
		"request_id", requestID,
		"driver_id", driverID,
		"type", req.cmd.Type,
		"state", res.State,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toMutationResponse(res))
}

// HandleEditEvent handles PATCH /drivers/{driverID}/events/{eventID}.
func (h *Handler) HandleEditEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	editor := requestcontext.ActorID(ctx)
	if editor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "edits require an authenticated back-office user"))
		return
	}
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}
	eventID, err := domain.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EditEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	event, err := h.service.EditEvent(ctx, driverID, eventID, req.params(editor))
	if err != nil {
		h.fail(ctx, w, "edit event failed", err)
		return
	}

	h.logger.InfoContext(ctx, "event edited",
		"request_id", requestID,
		"driver_id", driverID,
		"event_id", eventID,
		"actor_id", editor,
	)
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(event))
}

// HandleWorkday handles GET /drivers/{driverID}/workday?date=YYYY-MM-DD. The
// date defaults to today in the service timezone.
func (h *Handler) HandleWorkday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}

	loc := h.service.Location()
	date := time.Now().In(loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := parseDate("date", raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		date = localMidnight(parsed, loc)
	}

	summary, err := h.service.Workday(ctx, driverID, date)
	if err != nil {
		h.fail(ctx, w, "workday calculation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWorkdayResponse(summary))
}

// HandleRecalculate handles POST /drivers/{driverID}/workday/recalculate.
func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	driverID, ok := h.driverID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecalculateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	loc := h.service.Location()
	summaries, err := h.service.RecalculateRange(ctx, driverID, localMidnight(req.from, loc), localMidnight(req.to, loc))
	if err != nil {
		h.fail(ctx, w, "workday recalculation failed", err)
		return
	}

	h.logger.InfoContext(ctx, "workdays recalculated",
		"request_id", requestID,
		"driver_id", driverID,
		"days", len(summaries),
		"actor_id", requestcontext.ActorID(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	resp := make([]WorkdayResponse, len(summaries))
	for i, s := range summaries {
		resp[i] = toWorkdayResponse(s)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) driverID(w http.ResponseWriter, r *http.Request) (domain.DriverID, bool) {
	driverID, err := domain.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.DriverID{}, false
	}
	return driverID, true
}

// fail logs err at a level matching its code and writes the response.
// Rejected transitions carry the legal alternatives back to the client.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.InfoContext(ctx, msg, "request_id", requestID, "error", err)
	}

	var te *fsm.TransitionError
	if errors.As(err, &te) {
		httputil.WriteJSON(w, http.StatusConflict, TransitionErrorResponse{
			Error:         string(dErrors.CodeInvalidTransition),
			Description:   dErrors.MessageOf(err),
			CurrentState:  te.From,
			AllowedEvents: te.Allowed,
		})
		return
	}
	httputil.WriteError(w, err)
}

func localMidnight(d time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}
