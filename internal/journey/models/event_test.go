package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"jornada/internal/journey/fsm"
	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

type EventSuite struct {
	suite.Suite
	now      time.Time
	driverID domain.DriverID
	company  domain.CompanyID
}

func TestEventSuite(t *testing.T) {
	suite.Run(t, new(EventSuite))
}

func (s *EventSuite) SetupTest() {
	s.now = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.driverID = domain.NewDriverID()
	s.company = domain.NewCompanyID()
}

func (s *EventSuite) newEvent(t fsm.EventType, startedAt time.Time) *Event {
	e, err := NewEvent(NewEventParams{DriverID: s.driverID, CompanyID: s.company, Type: t, StartedAt: startedAt}, s.now)
	s.Require().NoError(err)
	return e
}

func (s *EventSuite) TestClockDriftWindow() {
	cases := []struct {
		name    string
		offset  time.Duration
		wantErr bool
	}{
		{"25 hours ahead", 25 * time.Hour, true},
		{"25 hours behind", -25 * time.Hour, true},
		{"23 hours ahead", 23 * time.Hour, false},
		{"23 hours behind", -23 * time.Hour, false},
		{"exactly 24 hours behind", -24 * time.Hour, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := NewEvent(NewEventParams{
				DriverID:  s.driverID,
				CompanyID: s.company,
				Type:      fsm.ShiftStart,
				StartedAt: s.now.Add(tc.offset),
			}, s.now)
			if tc.wantErr {
				s.Require().Error(err)
				s.True(dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			s.Require().NoError(err)
		})
	}
}

func (s *EventSuite) TestNewEventDefaults() {
	e := s.newEvent(fsm.MealStart, s.now)
	s.False(e.ID.IsNil())
	s.Equal(SourceMobileManual, e.Source)
	s.True(e.IsActive())
	s.True(e.IsStart())
	s.False(e.IsCompleted())

	s.Run("rejects unknown source", func() {
		_, err := NewEvent(NewEventParams{
			DriverID: s.driverID, CompanyID: s.company, Type: fsm.MealStart, StartedAt: s.now, Source: "fax",
		}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects missing driver", func() {
		_, err := NewEvent(NewEventParams{CompanyID: s.company, Type: fsm.MealStart, StartedAt: s.now}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("end markers are never active", func() {
		marker := s.newEvent(fsm.MealEnd, s.now)
		s.False(marker.IsActive())
		s.True(marker.IsEnd())
	})
}

func (s *EventSuite) TestEnd() {
	s.Run("ends an open event", func() {
		e := s.newEvent(fsm.RestStart, s.now)
		loc := domain.MustLocation(-23.5, -46.6, 10)
		s.Require().NoError(e.End(s.now.Add(30*time.Minute), &loc, s.now))

		d, ok := e.Duration()
		s.True(ok)
		s.Equal(30*time.Minute, d)
		s.False(e.IsActive())
		s.Equal(&loc, e.LocationEnd)
	})

	s.Run("rejects a second end", func() {
		e := s.newEvent(fsm.RestStart, s.now)
		s.Require().NoError(e.End(s.now.Add(time.Minute), nil, s.now))
		err := e.End(s.now.Add(2*time.Minute), nil, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	})

	s.Run("rejects end at or before start", func() {
		e := s.newEvent(fsm.RestStart, s.now)
		s.True(dErrors.HasCode(e.End(s.now, nil, s.now), dErrors.CodeBusinessRule))
		s.True(dErrors.HasCode(e.End(s.now.Add(-time.Minute), nil, s.now), dErrors.CodeBusinessRule))
		s.Nil(e.EndedAt)
	})

	s.Run("rejects ending a marker", func() {
		e := s.newEvent(fsm.RestEnd, s.now)
		s.True(dErrors.HasCode(e.End(s.now.Add(time.Minute), nil, s.now), dErrors.CodeBusinessRule))
	})
}

func (s *EventSuite) TestEdit() {
	editor := domain.NewUserID()

	s.Run("blank reason fails regardless of fields", func() {
		e := s.newEvent(fsm.MealStart, s.now)
		newStart := s.now.Add(-time.Hour)
		_, err := e.Edit(EditParams{EditedBy: editor, Reason: "   ", StartedAt: &newStart}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(s.now, e.StartedAt)
	})

	s.Run("identical values produce no notification", func() {
		e := s.newEvent(fsm.MealStart, s.now)
		same := s.now
		edited, err := e.Edit(EditParams{EditedBy: editor, Reason: "checking", StartedAt: &same}, s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.Nil(edited)
		s.Nil(e.EditedBy)
		s.Equal(s.now, e.UpdatedAt)
	})

	s.Run("records only changed fields", func() {
		e := s.newEvent(fsm.MealStart, s.now)
		s.Require().NoError(e.End(s.now.Add(time.Hour), nil, s.now))
		same := s.now
		newEnd := s.now.Add(45 * time.Minute)
		loc := domain.MustLocation(-22.9, -43.1, 5)

		editedAt := s.now.Add(2 * time.Hour)
		edited, err := e.Edit(EditParams{
			EditedBy:      editor,
			Reason:        "driver forgot to end meal",
			StartedAt:     &same,
			EndedAt:       &newEnd,
			LocationStart: &loc,
		}, editedAt)
		s.Require().NoError(err)
		s.Require().NotNil(edited)
		s.Len(edited.Changes, 2)
		s.Equal("ended_at", edited.Changes[0].Field)
		s.Equal("2024-03-04T13:00:00Z", edited.Changes[0].Old)
		s.Equal("2024-03-04T12:45:00Z", edited.Changes[0].New)
		s.Equal("location_start", edited.Changes[1].Field)
		s.Equal("", edited.Changes[1].Old)

		s.Equal(editor, *e.EditedBy)
		s.Equal("driver forgot to end meal", e.EditReason)
		s.Equal(editedAt, e.UpdatedAt)
		s.Equal(NotificationEventEdited, edited.NotificationName())
	})

	s.Run("rejects an inverted result", func() {
		e := s.newEvent(fsm.MealStart, s.now)
		s.Require().NoError(e.End(s.now.Add(time.Hour), nil, s.now))
		newStart := s.now.Add(2 * time.Hour)
		_, err := e.Edit(EditParams{EditedBy: editor, Reason: "fix", StartedAt: &newStart}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
		s.Equal(s.now, e.StartedAt)
	})

	s.Run("requires an editor", func() {
		e := s.newEvent(fsm.MealStart, s.now)
		_, err := e.Edit(EditParams{Reason: "fix"}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *EventSuite) TestConflictsWith() {
	meal := s.newEvent(fsm.MealStart, s.now)
	s.Require().NoError(meal.End(s.now.Add(time.Hour), nil, s.now))

	s.Run("overlapping different types conflict", func() {
		rest := s.newEvent(fsm.RestStart, s.now.Add(30*time.Minute))
		s.True(meal.ConflictsWith(rest))
		s.True(rest.ConflictsWith(meal))
	})

	s.Run("open events extend to infinity", func() {
		rest := s.newEvent(fsm.RestStart, s.now.Add(-5*time.Hour))
		s.True(meal.ConflictsWith(rest))
	})

	s.Run("touching intervals do not conflict", func() {
		rest := s.newEvent(fsm.RestStart, s.now.Add(time.Hour))
		s.False(meal.ConflictsWith(rest))
	})

	s.Run("same type never conflicts", func() {
		other := s.newEvent(fsm.MealStart, s.now.Add(10*time.Minute))
		s.False(meal.ConflictsWith(other))
	})

	s.Run("different drivers never conflict", func() {
		other, err := NewEvent(NewEventParams{
			DriverID: domain.NewDriverID(), CompanyID: s.company, Type: fsm.RestStart, StartedAt: s.now,
		}, s.now)
		s.Require().NoError(err)
		s.False(meal.ConflictsWith(other))
	})
}

func (s *EventSuite) TestDistanceAndSkew() {
	e := s.newEvent(fsm.ShiftStart, s.now)
	_, ok := e.DistanceKm()
	s.False(ok)

	start := domain.MustLocation(0, 0, 0)
	end := domain.MustLocation(0, 1, 0)
	e.LocationStart = &start
	e.LocationEnd = &end
	km, ok := e.DistanceKm()
	s.True(ok)
	s.InDelta(111.19, km, 0.01)

	north := domain.MustLocation(37.2, 10.3, 0)
	antipode := domain.MustLocation(-37.2, -169.7, 0)
	e.LocationStart = &north
	e.LocationEnd = &antipode
	km, ok = e.DistanceKm()
	s.True(ok)
	s.InDelta(20015.09, km, 0.01)

	s.False(e.SkewExceeds(time.Minute))
	skew := -6 * time.Minute
	e.DeviceTimeSkew = &skew
	s.True(e.SkewExceeds(5 * time.Minute))
	s.False(e.SkewExceeds(10 * time.Minute))
}

func (s *EventSuite) TestSortEventsPutsMarkersFirstOnTies() {
	meal := s.newEvent(fsm.MealStart, s.now)
	restEnd := s.newEvent(fsm.RestEnd, s.now)
	shift := s.newEvent(fsm.ShiftStart, s.now.Add(-time.Hour))

	events := []*Event{meal, restEnd, shift}
	SortEvents(events)
	s.Equal([]*Event{shift, restEnd, meal}, events)
}
