package driver

import (
	"context"
	"sync"
	"time"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
)

// InMemory keeps drivers and their event logs in maps. Reads return copies,
// so an aggregate loaded by one caller never aliases another's.
type InMemory struct {
	mu      sync.RWMutex
	drivers map[domain.DriverID]models.Driver
	events  map[domain.DriverID]map[domain.EventID]models.Event
}

func NewInMemory() *InMemory {
	return &InMemory{
		drivers: make(map[domain.DriverID]models.Driver),
		events:  make(map[domain.DriverID]map[domain.EventID]models.Event),
	}
}

func (s *InMemory) Create(_ context.Context, d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[d.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.drivers {
		if existing.CompanyID == d.CompanyID && existing.Cpf == d.Cpf {
			return sentinel.ErrConflict
		}
	}
	s.drivers[d.ID] = detach(d)
	s.storeEvents(d.ID, d.Events())
	return nil
}

func (s *InMemory) Update(_ context.Context, d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.drivers[d.ID] = detach(d)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.DriverID) (*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.hydrate(d), nil
}

func (s *InMemory) FindByCpf(_ context.Context, companyID domain.CompanyID, cpf domain.Cpf) (*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.drivers {
		if d.CompanyID == companyID && d.Cpf == cpf {
			return s.hydrate(d), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) SaveEvents(_ context.Context, events []*models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if _, ok := s.drivers[e.DriverID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for _, e := range events {
		s.storeEvents(e.DriverID, []models.Event{*e})
	}
	return nil
}

func (s *InMemory) ListEvents(_ context.Context, driverID domain.DriverID, from, to time.Time) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events[driverID] {
		if e.StartedAt.Before(from) || !e.StartedAt.Before(to) {
			continue
		}
		e := e
		out = append(out, &e)
	}
	models.SortEvents(out)
	result := make([]models.Event, len(out))
	for i, e := range out {
		result[i] = *e
	}
	return result, nil
}

func (s *InMemory) storeEvents(driverID domain.DriverID, events []models.Event) {
	log, ok := s.events[driverID]
	if !ok {
		log = make(map[domain.EventID]models.Event)
		s.events[driverID] = log
	}
	for _, e := range events {
		log[e.ID] = e
	}
}

func (s *InMemory) hydrate(d models.Driver) *models.Driver {
	log := s.events[d.ID]
	events := make([]*models.Event, 0, len(log))
	for _, e := range log {
		e := e
		events = append(events, &e)
	}
	d.LoadEvents(events)
	return &d
}

// detach copies the driver without its event log; events live in their own map.
func detach(d *models.Driver) models.Driver {
	cp := *d
	cp.LoadEvents(nil)
	return cp
}
