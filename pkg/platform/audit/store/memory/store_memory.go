package memory

import (
	"context"
	"sort"
	"sync"

	"jornada/pkg/domain"
	audit "jornada/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[domain.DriverID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[domain.DriverID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[domain.DriverID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.DriverID] = append(s.events[event.DriverID], event)
	return nil
}

func (s *InMemoryStore) ListByDriver(_ context.Context, driverID domain.DriverID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[driverID]...), nil
}

// ListRecent returns up to limit events across all drivers, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	var all []audit.Event
	for _, driverEvents := range s.events {
		all = append(all, driverEvents...)
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
