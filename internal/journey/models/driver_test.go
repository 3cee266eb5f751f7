package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"jornada/internal/journey/fsm"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

type DriverSuite struct {
	suite.Suite
	now    time.Time
	driver *Driver
}

func TestDriverSuite(t *testing.T) {
	suite.Run(t, new(DriverSuite))
}

func (s *DriverSuite) SetupTest() {
	s.now = time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	d, err := NewDriver(domain.NewDriverID(), domain.NewCompanyID(), "Maria Souza",
		domain.MustCpf("111.444.777-35"), "+55 11 99999-0000", "Maria@Example.com", s.now)
	s.Require().NoError(err)
	s.driver = d
}

func (s *DriverSuite) at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	s.Require().NoError(err)
	return time.Date(2024, 3, 4, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func (s *DriverSuite) start(t fsm.EventType, hhmm string) *MutationResult {
	res, err := s.driver.StartEvent(StartEventCommand{Type: t, StartedAt: s.at(hhmm)}, s.now)
	s.Require().NoError(err, "start %s at %s", t, hhmm)
	return res
}

func (s *DriverSuite) TestNewDriver() {
	s.Equal("maria@example.com", s.driver.Email)
	s.Equal(DriverStatusActive, s.driver.Status)
	s.Equal(fsm.OffShift, s.driver.CurrentState())
	s.Equal([]fsm.EventType{fsm.ShiftStart}, s.driver.AllowedEvents())

	s.Run("validates required fields", func() {
		cpf := domain.MustCpf("52998224725")
		cases := map[string]func() error{
			"empty name": func() error {
				_, err := NewDriver(domain.NewDriverID(), domain.NewCompanyID(), " ", cpf, "1", "a@b.c", s.now)
				return err
			},
			"missing cpf": func() error {
				_, err := NewDriver(domain.NewDriverID(), domain.NewCompanyID(), "A", domain.Cpf{}, "1", "a@b.c", s.now)
				return err
			},
			"bad email": func() error {
				_, err := NewDriver(domain.NewDriverID(), domain.NewCompanyID(), "A", cpf, "1", "nope", s.now)
				return err
			},
			"missing phone": func() error {
				_, err := NewDriver(domain.NewDriverID(), domain.NewCompanyID(), "A", cpf, "", "a@b.c", s.now)
				return err
			},
		}
		for name, fn := range cases {
			err := fn()
			s.Require().Error(err, name)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), name)
		}
	})
}

func (s *DriverSuite) TestStartShift() {
	res := s.start(fsm.ShiftStart, "08:00")

	s.Equal(fsm.OffShift, res.PreviousState)
	s.Equal(fsm.Working, res.State)
	s.Require().Len(res.Notifications, 2)
	created, ok := res.Notifications[0].(EventCreated)
	s.Require().True(ok)
	s.Equal(fsm.ShiftStart, created.Type)
	changed, ok := res.Notifications[1].(DriverStateChanged)
	s.Require().True(ok)
	s.Equal(fsm.Working, changed.Next)
	s.Equal([]*Event{res.Event}, res.Changed)
}

func (s *DriverSuite) TestMealWhileRestingAutoClosesRest() {
	s.start(fsm.ShiftStart, "08:00")
	rest := s.start(fsm.RestStart, "10:00")
	meal := s.start(fsm.MealStart, "12:00")

	s.Require().NotNil(meal.AutoClosed)
	s.Equal(rest.Event.ID, meal.AutoClosed.ID)
	s.Equal(meal.Event.StartedAt, *meal.AutoClosed.EndedAt)
	s.Equal(fsm.Rest, meal.PreviousState)
	s.Equal(fsm.Meal, meal.State)

	active := s.driver.ActiveEvents()
	s.Require().Len(active, 2)
	s.Equal(fsm.ShiftStart, active[0].Type)
	s.Equal(fsm.MealStart, active[1].Type)

	s.Run("the rest end marker precedes the meal in the log", func() {
		events := s.driver.Events()
		s.Require().Len(events, 4)
		s.Equal(fsm.RestEnd, events[2].Type)
		s.Equal(fsm.MealStart, events[3].Type)
		s.Equal(events[2].StartedAt, events[3].StartedAt)
	})

	s.Run("auto close is reported", func() {
		var ended *EventEnded
		for _, n := range meal.Notifications {
			if e, ok := n.(EventEnded); ok {
				ended = &e
			}
		}
		s.Require().NotNil(ended)
		s.True(ended.AutoClosed)
		s.Equal(2*time.Hour, ended.Duration)
	})
}

func (s *DriverSuite) TestRejectedTransitionCarriesAlternatives() {
	_, err := s.driver.StartEvent(StartEventCommand{Type: fsm.MealStart, StartedAt: s.at("08:00")}, s.now)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	var te *fsm.TransitionError
	s.Require().True(errors.As(err, &te))
	s.Equal(fsm.OffShift, te.From)
	s.Equal([]fsm.EventType{fsm.ShiftStart}, te.Allowed)
	s.Empty(s.driver.Events())
}

func (s *DriverSuite) TestRejectsSameSubActivityTwice() {
	s.start(fsm.ShiftStart, "08:00")
	s.start(fsm.DisposalStart, "09:00")
	_, err := s.driver.StartEvent(StartEventCommand{Type: fsm.DisposalStart, StartedAt: s.at("09:30")}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	s.Len(s.driver.Events(), 2)
}

func (s *DriverSuite) TestInactiveDriverCannotStart() {
	s.Require().NoError(s.driver.UpdateStatus(DriverStatusSuspended, s.now))
	_, err := s.driver.StartEvent(StartEventCommand{Type: fsm.ShiftStart, StartedAt: s.at("08:00")}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
}

func (s *DriverSuite) TestShiftEndClosesOpenSubActivity() {
	s.start(fsm.ShiftStart, "08:00")
	s.start(fsm.InspectionStart, "16:00")
	res := s.start(fsm.ShiftEnd, "17:00")

	s.Equal(fsm.OffShift, res.State)
	s.Require().NotNil(res.AutoClosed)
	s.Equal(fsm.InspectionStart, res.AutoClosed.Type)
	s.Empty(s.driver.ActiveEvents())

	types := make([]fsm.EventType, 0)
	for _, e := range s.driver.Events() {
		types = append(types, e.Type)
	}
	s.Equal([]fsm.EventType{fsm.ShiftStart, fsm.InspectionStart, fsm.InspectionEnd, fsm.ShiftEnd}, types)
}

func (s *DriverSuite) TestEndEvent() {
	s.Run("fails with no active event", func() {
		_, err := s.driver.EndEvent(EndEventCommand{Type: fsm.MealStart, EndedAt: s.at("12:00")}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	})

	s.start(fsm.ShiftStart, "08:00")
	s.start(fsm.MealStart, "12:00")

	s.Run("fails when end is not after start", func() {
		_, err := s.driver.EndEvent(EndEventCommand{Type: fsm.MealStart, EndedAt: s.at("12:00")}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		_, err = s.driver.EndEvent(EndEventCommand{Type: fsm.MealStart, EndedAt: s.at("11:00")}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Equal(fsm.Meal, s.driver.CurrentState())
	})

	s.Run("ends the meal and appends its marker", func() {
		res, err := s.driver.EndEvent(EndEventCommand{Type: fsm.MealEnd, EndedAt: s.at("12:30")}, s.now)
		s.Require().NoError(err)
		s.Equal(fsm.MealStart, res.Event.Type)
		s.Require().NotNil(res.Marker)
		s.Equal(fsm.MealEnd, res.Marker.Type)
		s.Equal(fsm.Working, res.State)

		ended, ok := res.Notifications[0].(EventEnded)
		s.Require().True(ok)
		s.False(ended.AutoClosed)
		s.Equal(30*time.Minute, ended.Duration)
	})

	s.Run("ending the shift closes the open sub-activity", func() {
		s.start(fsm.RestStart, "15:00")
		res, err := s.driver.EndEvent(EndEventCommand{Type: fsm.ShiftStart, EndedAt: s.at("17:00")}, s.now)
		s.Require().NoError(err)
		s.Require().NotNil(res.AutoClosed)
		s.Equal(fsm.RestStart, res.AutoClosed.Type)
		s.Equal(fsm.OffShift, res.State)
		s.Len(res.Changed, 4)
	})
}

func (s *DriverSuite) TestStartWithEndTypeClosesPair() {
	s.start(fsm.ShiftStart, "08:00")
	meal := s.start(fsm.MealStart, "12:00")
	res := s.start(fsm.MealEnd, "12:45")

	s.Equal(fsm.Working, res.State)
	s.Nil(res.AutoClosed)
	s.Equal(fsm.MealEnd, res.Event.Type)
	got, ok := s.driver.Event(meal.Event.ID)
	s.Require().True(ok)
	s.Require().NotNil(got.EndedAt)
	s.Equal(s.at("12:45"), *got.EndedAt)
}

func (s *DriverSuite) TestFailedAutoCloseLeavesLogUntouched() {
	s.start(fsm.ShiftStart, "08:00")
	s.start(fsm.RestStart, "10:00")
	_, err := s.driver.StartEvent(StartEventCommand{Type: fsm.MealStart, StartedAt: s.at("10:00")}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	s.Len(s.driver.Events(), 2)
	s.Equal(fsm.Rest, s.driver.CurrentState())
}

func (s *DriverSuite) TestEditEvent() {
	res := s.start(fsm.ShiftStart, "08:00")
	editor := domain.NewUserID()
	newStart := s.at("07:45")

	edited, err := s.driver.EditEvent(res.Event.ID, EditParams{EditedBy: editor, Reason: "late sync", StartedAt: &newStart}, s.now)
	s.Require().NoError(err)
	s.Require().NotNil(edited)
	got, _ := s.driver.Event(res.Event.ID)
	s.Equal(newStart, got.StartedAt)

	_, err = s.driver.EditEvent(domain.NewEventID(), EditParams{EditedBy: editor, Reason: "x"}, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DriverSuite) eventOfType(t fsm.EventType) Event {
	for _, e := range s.driver.Events() {
		if e.Type == t {
			return e
		}
	}
	s.FailNow("no event of type " + t.String())
	return Event{}
}

func (s *DriverSuite) TestEditEventMovesPairedRecord() {
	s.start(fsm.ShiftStart, "08:00")
	meal := s.start(fsm.MealStart, "12:00").Event
	_, err := s.driver.EndEvent(EndEventCommand{Type: fsm.MealEnd, EndedAt: s.at("12:30")}, s.now)
	s.Require().NoError(err)
	editor := domain.NewUserID()

	s.Run("moving a start's end moves its marker", func() {
		newEnd := s.at("13:30")
		res, err := s.driver.EditEvent(meal.ID, EditParams{EditedBy: editor, Reason: "late sync", EndedAt: &newEnd}, s.now)
		s.Require().NoError(err)
		s.Require().NotNil(res.Paired)
		s.Equal(fsm.MealEnd, res.Paired.Type)
		s.Len(res.Notifications, 2)
		s.Equal(newEnd, *s.eventOfType(fsm.MealStart).EndedAt)
		s.Equal(newEnd, s.eventOfType(fsm.MealEnd).StartedAt)
	})

	s.Run("moving a marker moves the end of its start", func() {
		marker := s.eventOfType(fsm.MealEnd)
		later := s.at("14:00")
		res, err := s.driver.EditEvent(marker.ID, EditParams{EditedBy: editor, Reason: "late sync", StartedAt: &later}, s.now)
		s.Require().NoError(err)
		s.Require().NotNil(res.Paired)
		s.Equal(meal.ID, res.Paired.ID)
		s.Equal(later, *s.eventOfType(fsm.MealStart).EndedAt)
	})

	s.Run("a marker cannot move to or before its start", func() {
		marker := s.eventOfType(fsm.MealEnd)
		early := s.at("11:00")
		_, err := s.driver.EditEvent(marker.ID, EditParams{EditedBy: editor, Reason: "typo", StartedAt: &early}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Equal(s.at("14:00"), s.eventOfType(fsm.MealEnd).StartedAt)
		s.Equal(s.at("14:00"), *s.eventOfType(fsm.MealStart).EndedAt)
	})

	s.Run("the end location travels with the marker", func() {
		loc := domain.MustLocation(-23.55, -46.63, 10)
		res, err := s.driver.EditEvent(meal.ID, EditParams{EditedBy: editor, Reason: "gps fix", LocationEnd: &loc}, s.now)
		s.Require().NoError(err)
		s.Require().NotNil(res.Paired)
		s.Require().NotNil(s.eventOfType(fsm.MealEnd).LocationStart)
		s.True(loc.Equal(*s.eventOfType(fsm.MealEnd).LocationStart))
	})

	s.Run("an active start cannot be given an end", func() {
		shift := s.eventOfType(fsm.ShiftStart)
		end := s.at("17:00")
		_, err := s.driver.EditEvent(shift.ID, EditParams{EditedBy: editor, Reason: "x", EndedAt: &end}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Equal(fsm.Working, s.driver.CurrentState())
	})

	s.Run("moving a start alone leaves the marker", func() {
		earlier := s.at("11:45")
		res, err := s.driver.EditEvent(meal.ID, EditParams{EditedBy: editor, Reason: "x", StartedAt: &earlier}, s.now)
		s.Require().NoError(err)
		s.Nil(res.Paired)
		s.Equal(s.at("14:00"), s.eventOfType(fsm.MealEnd).StartedAt)
	})
}

func (s *DriverSuite) TestStatusAndContact() {
	s.Require().NoError(s.driver.UpdateStatus(DriverStatusTerminated, s.now))
	err := s.driver.UpdateStatus(DriverStatusActive, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))

	s.Require().NoError(s.driver.UpdateContactInfo("123", "NEW@mail.com", s.now))
	s.Equal("new@mail.com", s.driver.Email)
	s.Error(s.driver.UpdateContactInfo("123", "", s.now))

	s.Error(s.driver.SetPassword("", s.now))
	s.Require().NoError(s.driver.SetPassword("$2a$10$hash", s.now))
	s.Equal("$2a$10$hash", s.driver.PasswordHash)
}

func (s *DriverSuite) TestLoadEventsRestoresState() {
	s.start(fsm.ShiftStart, "08:00")
	s.start(fsm.RestStart, "10:00")
	s.start(fsm.MealStart, "12:00")

	events := s.driver.Events()
	ptrs := make([]*Event, len(events))
	for i := range events {
		ptrs[len(events)-1-i] = &events[i]
	}

	reloaded := *s.driver
	reloaded.LoadEvents(ptrs)
	s.Equal(fsm.Meal, reloaded.CurrentState())
	s.Equal(s.driver.Events(), reloaded.Events())
}
