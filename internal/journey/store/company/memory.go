package company

import (
	"context"
	"slices"
	"sync"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
)

type InMemory struct {
	mu        sync.RWMutex
	companies map[domain.CompanyID]models.Company
}

func NewInMemory() *InMemory {
	return &InMemory{companies: make(map[domain.CompanyID]models.Company)}
}

// Create fails with sentinel.ErrConflict when the CNPJ is taken.
func (s *InMemory) Create(_ context.Context, c *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.companies {
		if existing.Cnpj == c.Cnpj {
			return sentinel.ErrConflict
		}
	}
	s.companies[c.ID] = clone(c)
	return nil
}

func (s *InMemory) Update(_ context.Context, c *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.companies[c.ID] = clone(c)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.CompanyID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c = clone(&c)
	return &c, nil
}

func clone(c *models.Company) models.Company {
	cp := *c
	cp.Drivers = slices.Clone(c.Drivers)
	cp.Vehicles = slices.Clone(c.Vehicles)
	return cp
}
