//go:build integration

package containers

import (
	"sync"
	"testing"
)

// Manager shares one container of each kind across the suites of a test
// binary. Ryuk removes them when the process exits.
type Manager struct {
	pgOnce    sync.Once
	postgres  *PostgresContainer
	redisOnce sync.Once
	redis     *RedisContainer
}

var (
	managerOnce sync.Once
	manager     *Manager
)

func GetManager() *Manager {
	managerOnce.Do(func() { manager = &Manager{} })
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.pgOnce.Do(func() { m.postgres = NewPostgresContainer(t) })
	if m.postgres == nil {
		t.Fatal("postgres container failed to start earlier in this run")
	}
	return m.postgres
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() { m.redis = NewRedisContainer(t) })
	if m.redis == nil {
		t.Fatal("redis container failed to start earlier in this run")
	}
	return m.redis
}
