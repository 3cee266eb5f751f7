package models

import (
	"time"

	"jornada/pkg/domain"
)

// DateLayout is the calendar-date format used for workday keys.
const DateLayout = "2006-01-02"

// WorkdaySummary is the derived totals for one driver and local date. It is
// recomputed from events, never updated incrementally.
type WorkdaySummary struct {
	DriverID              domain.DriverID `json:"driver_id"`
	Date                  string          `json:"date"`
	TotalWorked           time.Duration   `json:"total_worked"`
	TotalRest             time.Duration   `json:"total_rest"`
	TotalMeal             time.Duration   `json:"total_meal"`
	TotalDisposal         time.Duration   `json:"total_disposal"`
	LongestContinuousWork time.Duration   `json:"longest_continuous_work"`
	Anomalies             []string        `json:"anomalies"`
	CalculatedAt          time.Time       `json:"calculated_at"`
}

// TotalShift sums every accounted activity of the day.
func (s *WorkdaySummary) TotalShift() time.Duration {
	return s.TotalWorked + s.TotalRest + s.TotalMeal + s.TotalDisposal
}

func (s *WorkdaySummary) HasAnomalies() bool {
	return len(s.Anomalies) > 0
}
