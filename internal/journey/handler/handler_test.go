package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"jornada/internal/journey/models"
	"jornada/internal/journey/service"
	"jornada/internal/journey/store/company"
	"jornada/internal/journey/store/driver"
	"jornada/internal/journey/store/summary"
	"jornada/pkg/domain"
	"jornada/pkg/platform/middleware/admin"
	"jornada/pkg/platform/middleware/metadata"
	"jornada/pkg/testutil"
)

const adminToken = "secret-token"

// HandlerSuite drives the router end to end against the real service backed
// by in-memory stores.
type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	company *models.Company
	actor   uuid.UUID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	companies := company.NewInMemory()
	c, err := models.NewCompany(domain.NewCompanyID(), "Transportes Andrade", domain.MustCnpj("11222333000181"), models.DefaultCompanySettings(), now)
	s.Require().NoError(err)
	s.Require().NoError(companies.Create(ctx, c))
	s.company = c
	s.actor = uuid.New()

	svc, err := service.New(driver.NewInMemory(), companies, summary.NewInMemory(),
		service.WithLogger(logger),
		service.WithClock(func() time.Time { return now }),
	)
	s.Require().NoError(err)

	h := New(svc, logger)
	r := chi.NewRouter()
	r.Use(chimw.RequestID, metadata.ClientMetadata)
	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireBackOffice(adminToken, logger))
		h.RegisterBackOffice(r)
	})
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any, backOffice bool) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if backOffice {
		testutil.WithHeaders(req, map[string]string{
			admin.TokenHeader: adminToken,
			admin.ActorHeader: s.actor.String(),
		})
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	testutil.DecodeJSON(s.T(), rec, v)
}

func (s *HandlerSuite) registerDriver() string {
	rec := s.do(http.MethodPost, "/drivers", map[string]string{
		"company_id": s.company.ID.String(),
		"name":       "Joana Lima",
		"cpf":        "529.982.247-25",
		"phone":      "+5511999990000",
	}, true)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID                string `json:"id"`
		Cpf               string `json:"cpf"`
		Status            string `json:"status"`
		TemporaryPassword string `json:"temporary_password"`
	}
	s.decode(rec, &resp)
	s.Equal("529.982.247-25", resp.Cpf)
	s.Equal("active", resp.Status)
	s.NotEmpty(resp.TemporaryPassword)
	return resp.ID
}

func at(hhmm string) string {
	return "2025-03-10T" + hhmm + ":00Z"
}

func (s *HandlerSuite) TestRegisterDriver() {
	s.Run("requires back-office credentials", func() {
		rec := s.do(http.MethodPost, "/drivers", map[string]string{"company_id": s.company.ID.String()}, false)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("rejects an invalid cpf", func() {
		rec := s.do(http.MethodPost, "/drivers", map[string]string{
			"company_id": s.company.ID.String(),
			"name":       "Joana Lima",
			"cpf":        "111.111.111-11",
		}, true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("creates the driver and reports a duplicate", func() {
		s.registerDriver()
		rec := s.do(http.MethodPost, "/drivers", map[string]string{
			"company_id": s.company.ID.String(),
			"name":       "Joana Lima",
			"cpf":        "52998224725",
		}, true)
		s.Equal(http.StatusConflict, rec.Code)
	})
}

func (s *HandlerSuite) TestCompanies() {
	s.Run("registers with default settings", func() {
		rec := s.do(http.MethodPost, "/companies", map[string]string{"name": "Rodovia Sul", "cnpj": "11.444.777/0001-61"}, true)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

		var resp CompanyResponse
		s.decode(rec, &resp)
		s.Equal("11.444.777/0001-61", resp.Cnpj)
		s.Equal(480, resp.Settings.MaxDailyWorkMinutes)
		s.Equal(660, resp.Settings.MinRestBetweenShiftsMinutes)
	})

	s.Run("settings are replaced", func() {
		rec := s.do(http.MethodPut, "/companies/"+s.company.ID.String()+"/settings", map[string]any{
			"max_daily_work_minutes":          600,
			"min_rest_between_shifts_minutes": 660,
			"max_continuous_work_minutes":     330,
			"require_location_on_events":      false,
			"clock_skew_tolerance_minutes":    5,
		}, true)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(http.MethodGet, "/companies/"+s.company.ID.String(), nil, true)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp CompanyResponse
		s.decode(rec, &resp)
		s.Equal(600, resp.Settings.MaxDailyWorkMinutes)
		s.False(resp.Settings.RequireLocationOnEvents)
	})

	s.Run("non-positive limits are rejected", func() {
		rec := s.do(http.MethodPut, "/companies/"+s.company.ID.String()+"/settings", map[string]any{
			"max_daily_work_minutes": 0,
		}, true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestEventFlow() {
	driverID := s.registerDriver()
	base := "/drivers/" + driverID

	s.Run("shift start moves the driver to working", func() {
		rec := s.do(http.MethodPost, base+"/events", map[string]any{"type": "SHIFT_START", "started_at": at("08:00")}, false)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

		var resp MutationResponse
		s.decode(rec, &resp)
		s.Equal("OFF_SHIFT", resp.PreviousState.String())
		s.Equal("WORKING", resp.State.String())
		s.NotNil(resp.Event)
	})

	s.Run("an illegal move returns the allowed events", func() {
		rec := s.do(http.MethodPost, base+"/events", map[string]any{"type": "SHIFT_START", "started_at": at("09:00")}, false)
		s.Require().Equal(http.StatusConflict, rec.Code)

		var resp struct {
			Error         string   `json:"error"`
			CurrentState  string   `json:"current_state"`
			AllowedEvents []string `json:"allowed_events"`
		}
		s.decode(rec, &resp)
		s.Equal("invalid_transition", resp.Error)
		s.Equal("WORKING", resp.CurrentState)
		s.Contains(resp.AllowedEvents, "MEAL_START")
		s.NotContains(resp.AllowedEvents, "SHIFT_START")
	})

	s.Run("meal is started and ended", func() {
		rec := s.do(http.MethodPost, base+"/events", map[string]any{"type": "MEAL_START", "started_at": at("12:00")}, false)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

		rec = s.do(http.MethodPost, base+"/events/end", map[string]any{"type": "MEAL_START", "ended_at": at("12:30")}, false)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var resp MutationResponse
		s.decode(rec, &resp)
		s.Equal("MEAL", resp.PreviousState.String())
		s.Equal("WORKING", resp.State.String())
		s.Require().NotNil(resp.Event.DurationSeconds)
		s.Equal(int64(1800), *resp.Event.DurationSeconds)
	})

	s.Run("state reflects the open shift", func() {
		rec := s.do(http.MethodGet, base+"/state", nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp struct {
			State         string   `json:"state"`
			AllowedEvents []string `json:"allowed_events"`
			ActiveEvents  []struct {
				Type string `json:"type"`
			} `json:"active_events"`
		}
		s.decode(rec, &resp)
		s.Equal("WORKING", resp.State)
		s.Require().Len(resp.ActiveEvents, 1)
		s.Equal("SHIFT_START", resp.ActiveEvents[0].Type)
	})

	s.Run("workday totals are reported in minutes", func() {
		rec := s.do(http.MethodPost, base+"/events", map[string]any{"type": "SHIFT_END", "started_at": at("17:00")}, false)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

		rec = s.do(http.MethodGet, base+"/workday?date=2025-03-10", nil, false)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var resp WorkdayResponse
		s.decode(rec, &resp)
		s.Equal("2025-03-10", resp.Date)
		s.Equal(int64(510), resp.TotalWorkedMinutes)
		s.Equal(int64(30), resp.TotalMealMinutes)
		s.NotEmpty(resp.Anomalies)
	})
}

func (s *HandlerSuite) TestEditEvent() {
	driverID := s.registerDriver()
	base := "/drivers/" + driverID

	rec := s.do(http.MethodPost, base+"/events", map[string]any{"type": "SHIFT_START", "started_at": at("08:00")}, false)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var started MutationResponse
	s.decode(rec, &started)
	path := base + "/events/" + started.Event.ID.String()

	s.Run("requires back-office credentials", func() {
		rec := s.do(http.MethodPatch, path, map[string]any{"reason": "late", "started_at": at("07:45")}, false)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("requires a reason", func() {
		rec := s.do(http.MethodPatch, path, map[string]any{"started_at": at("07:45")}, true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("records the editor and reason", func() {
		rec := s.do(http.MethodPatch, path, map[string]any{"reason": "forgot to clock in", "started_at": at("07:45")}, true)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var resp EventResponse
		s.decode(rec, &resp)
		s.Equal("forgot to clock in", resp.EditReason)
		s.Require().NotNil(resp.EditedBy)
		s.Equal(s.actor, uuid.UUID(*resp.EditedBy))
		s.Equal(7, resp.StartedAt.Hour())
	})

	s.Run("unknown event is not found", func() {
		rec := s.do(http.MethodPatch, base+"/events/"+uuid.NewString(), map[string]any{"reason": "x", "started_at": at("07:45")}, true)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestChangeStatus() {
	driverID := s.registerDriver()
	base := "/drivers/" + driverID

	rec := s.do(http.MethodPatch, base+"/status", map[string]string{"status": "suspended", "reason": "documents expired"}, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/events", map[string]any{"type": "SHIFT_START", "started_at": at("08:00")}, false)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPatch, base+"/status", map[string]string{"status": "retired"}, true)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRequestValidation() {
	driverID := s.registerDriver()
	base := "/drivers/" + driverID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"malformed driver id", http.MethodGet, "/drivers/not-a-uuid/state", nil, http.StatusBadRequest},
		{"unknown driver", http.MethodGet, "/drivers/" + uuid.NewString() + "/state", nil, http.StatusNotFound},
		{"unknown event type", http.MethodPost, base + "/events", map[string]any{"type": "NAP_START", "started_at": at("08:00")}, http.StatusBadRequest},
		{"missing start time", http.MethodPost, base + "/events", map[string]any{"type": "SHIFT_START"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/events", map[string]any{"type": "SHIFT_START", "started_at": at("08:00"), "speed": 80}, http.StatusBadRequest},
		{"invalid location", http.MethodPost, base + "/events", map[string]any{"type": "SHIFT_START", "started_at": at("08:00"), "location": map[string]any{"latitude": 120, "longitude": 0}}, http.StatusBadRequest},
		{"clock skew beyond a day", http.MethodPost, base + "/events", map[string]any{"type": "SHIFT_START", "started_at": "2025-03-12T08:00:00Z"}, http.StatusBadRequest},
		{"malformed workday date", http.MethodGet, base + "/workday?date=10/03/2025", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.do(tc.method, tc.path, tc.body, false)
			s.Equal(tc.status, rec.Code, rec.Body.String())
		})
	}

	s.Run("inverted recalculation range", func() {
		rec := s.do(http.MethodPost, base+"/workday/recalculate", map[string]string{"from": "2025-03-10", "to": "2025-03-01"}, true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("recalculation returns one summary per day", func() {
		rec := s.do(http.MethodPost, base+"/workday/recalculate", map[string]string{"from": "2025-03-08", "to": "2025-03-10"}, true)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		var resp []WorkdayResponse
		s.decode(rec, &resp)
		s.Len(resp, 3)
	})
}

func (s *HandlerSuite) TestRequestIDIsEchoed() {
	req := testutil.WithHeaders(
		testutil.NewJSONRequest(s.T(), http.MethodGet, "/drivers/not-a-uuid/state", nil),
		map[string]string{metadata.RequestIDHeader: "req-123"},
	)
	rec := testutil.DoRequest(s.router, req)
	s.Equal("req-123", rec.Header().Get(metadata.RequestIDHeader))
}
