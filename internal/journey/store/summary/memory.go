package summary

import (
	"context"
	"slices"
	"sync"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
)

type key struct {
	driverID domain.DriverID
	date     string
}

// InMemory stores the last summary calculated per driver and day.
type InMemory struct {
	mu        sync.RWMutex
	summaries map[key]models.WorkdaySummary
}

func NewInMemory() *InMemory {
	return &InMemory{summaries: make(map[key]models.WorkdaySummary)}
}

func (s *InMemory) Save(_ context.Context, summary *models.WorkdaySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *summary
	cp.Anomalies = slices.Clone(summary.Anomalies)
	s.summaries[key{summary.DriverID, summary.Date}] = cp
	return nil
}

func (s *InMemory) Find(_ context.Context, driverID domain.DriverID, date string) (*models.WorkdaySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[key{driverID, date}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	summary.Anomalies = slices.Clone(summary.Anomalies)
	return &summary, nil
}
