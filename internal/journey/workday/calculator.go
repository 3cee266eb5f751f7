// Package workday derives daily totals and compliance anomalies from a
// driver's journey log. Calculation is a pure function of the events and the
// company settings; it is safe to run concurrently.
package workday

import (
	"fmt"
	"strings"
	"time"

	"jornada/internal/journey/fsm"
	"jornada/internal/journey/models"
	"jornada/pkg/domain"
)

type Calculator struct {
	settings models.CompanySettings
	location *time.Location
}

type Option func(*Calculator)

// WithLocation sets the timezone that defines calendar days. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.location = loc
		}
	}
}

func NewCalculator(settings models.CompanySettings, opts ...Option) *Calculator {
	c := &Calculator{settings: settings, location: time.UTC}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calculator) Location() *time.Location {
	return c.location
}

// DateKey returns the local calendar date of t.
func (c *Calculator) DateKey(t time.Time) string {
	return t.In(c.location).Format(models.DateLayout)
}

// pair is a start event matched with the end marker that follows it.
type pair struct {
	start    *models.Event
	end      *models.Event
	duration time.Duration
}

// Calculate summarises the events of driverID whose start falls on the local
// calendar date of date. events may span several days and arrive in any order;
// events before the day are consulted only for the rest-between-shifts check.
func (c *Calculator) Calculate(driverID domain.DriverID, date time.Time, events []models.Event, now time.Time) *models.WorkdaySummary {
	dateKey := c.DateKey(date)

	var all, day []*models.Event
	for i := range events {
		e := &events[i]
		if e.DriverID != driverID {
			continue
		}
		all = append(all, e)
		if c.DateKey(e.StartedAt) == dateKey {
			day = append(day, e)
		}
	}
	models.SortEvents(all)
	models.SortEvents(day)

	summary := &models.WorkdaySummary{
		DriverID:     driverID,
		Date:         dateKey,
		Anomalies:    []string{},
		CalculatedAt: now,
	}

	pairs := pairEvents(day)
	var shift *pair
	for i := range pairs {
		p := &pairs[i]
		if p.end == nil {
			continue
		}
		switch p.start.Type {
		case fsm.ShiftStart:
			if shift == nil {
				shift = p
			}
		case fsm.MealStart:
			summary.TotalMeal += p.duration
		case fsm.RestStart:
			summary.TotalRest += p.duration
		case fsm.DisposalStart:
			summary.TotalDisposal += p.duration
		}
	}
	if shift != nil {
		summary.TotalWorked = shift.duration - summary.TotalMeal - summary.TotalRest - summary.TotalDisposal
	}
	summary.LongestContinuousWork = longestContinuousWork(day)
	summary.Anomalies = c.detectAnomalies(summary, day, all)
	return summary
}

// pairEvents matches every start with the earliest later event of its pair
// type. The scan is greedy and does not consume ends, so consecutive starts of
// the same type share the first end after them.
func pairEvents(sorted []*models.Event) []pair {
	var pairs []pair
	for i, start := range sorted {
		if !start.Type.IsStart() {
			continue
		}
		want := fsm.PairType(start.Type)
		p := pair{start: start}
		for _, candidate := range sorted[i+1:] {
			if candidate.Type == want && candidate.StartedAt.After(start.StartedAt) {
				p.end = candidate
				p.duration = candidate.StartedAt.Sub(start.StartedAt)
				break
			}
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// longestContinuousWork scans the day in order. ShiftStart opens a work
// stretch, meal or rest starts and ShiftEnd close it, and any other end
// reopens it when none is running. Disposal and inspection starts keep the
// stretch going.
func longestContinuousWork(sorted []*models.Event) time.Duration {
	var longest time.Duration
	var open *time.Time
	closeAt := func(t time.Time) {
		if open == nil {
			return
		}
		if d := t.Sub(*open); d > longest {
			longest = d
		}
		open = nil
	}
	for _, e := range sorted {
		at := e.StartedAt
		switch e.Type {
		case fsm.ShiftStart:
			open = &at
		case fsm.MealStart, fsm.RestStart, fsm.ShiftEnd:
			closeAt(at)
		case fsm.MealEnd, fsm.RestEnd, fsm.DisposalEnd, fsm.InspectionEnd:
			if open == nil {
				open = &at
			}
		}
	}
	return longest
}

func (c *Calculator) detectAnomalies(summary *models.WorkdaySummary, day, all []*models.Event) []string {
	anomalies := []string{}

	if summary.TotalWorked > c.settings.MaxDailyWork {
		anomalies = append(anomalies, fmt.Sprintf("daily work exceeds limit: %s > %s",
			formatHHMM(summary.TotalWorked), formatHHMM(c.settings.MaxDailyWork)))
	}
	if summary.LongestContinuousWork > c.settings.MaxContinuousWork {
		anomalies = append(anomalies, fmt.Sprintf("continuous work exceeds limit: %s > %s",
			formatHHMM(summary.LongestContinuousWork), formatHHMM(c.settings.MaxContinuousWork)))
	}
	if c.settings.RequireLocationOnEvents {
		missing := 0
		for _, e := range day {
			if e.LocationStart == nil {
				missing++
			}
		}
		if missing > 0 {
			anomalies = append(anomalies, fmt.Sprintf("%d events without location", missing))
		}
	}

	var open []string
	for _, e := range day {
		if e.IsActive() {
			open = append(open, e.Type.String())
		}
	}
	if len(open) > 0 {
		anomalies = append(anomalies, fmt.Sprintf("%d events not finished: %s", len(open), strings.Join(open, ", ")))
	}

	if gap, ok := restBeforeFirstShift(day, all); ok && gap < c.settings.MinRestBetweenShifts {
		anomalies = append(anomalies, fmt.Sprintf("rest between shifts below minimum: %s < %s",
			formatHHMM(gap), formatHHMM(c.settings.MinRestBetweenShifts)))
	}

	if c.settings.ClockSkewTolerance > 0 {
		skewed := 0
		for _, e := range day {
			if e.SkewExceeds(c.settings.ClockSkewTolerance) {
				skewed++
			}
		}
		if skewed > 0 {
			anomalies = append(anomalies, fmt.Sprintf("%d events with device clock skew above %s",
				skewed, c.settings.ClockSkewTolerance))
		}
	}
	return anomalies
}

// restBeforeFirstShift measures from the last ShiftEnd before the day's first
// ShiftStart. It reports false when either side is missing.
func restBeforeFirstShift(day, all []*models.Event) (time.Duration, bool) {
	var first *models.Event
	for _, e := range day {
		if e.Type == fsm.ShiftStart {
			first = e
			break
		}
	}
	if first == nil {
		return 0, false
	}
	var last *models.Event
	for _, e := range all {
		if e.Type == fsm.ShiftEnd && !e.StartedAt.After(first.StartedAt) {
			last = e
		}
	}
	if last == nil {
		return 0, false
	}
	return first.StartedAt.Sub(last.StartedAt), true
}

func formatHHMM(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Minute)
	return fmt.Sprintf("%s%02d:%02d", sign, int(d/time.Hour), int((d%time.Hour)/time.Minute))
}
