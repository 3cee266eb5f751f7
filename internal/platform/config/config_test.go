package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil))
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}

	loc, err := cfg.Journey.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestLoadEnvironment(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"JORNADA_ADDR":                  ":9090",
		"DATABASE_URL":                  "postgres://jornada@db/jornada?sslmode=disable",
		"REDIS_URL":                     "redis://cache:6379/0",
		"KAFKA_BROKERS":                 "k1:9092, k2:9092,k1:9092,",
		"KAFKA_AUDIT_TOPIC":             "audit",
		"LOG_LEVEL":                     "debug",
		"LOG_FORMAT":                    "text",
		"JORNADA_TIMEZONE":              "UTC",
		"MAX_DAILY_WORK_HOURS":          "10",
		"MIN_REST_BETWEEN_SHIFTS_HOURS": "11.5",
		"REQUIRE_LOCATION_ON_EVENTS":    "false",
		"CLOCK_SKEW_TOLERANCE_MINUTES":  "2",
		"JORNADA_RATE_WINDOW":           "30s",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow)
	assert.Equal(t, "postgres://jornada@db/jornada?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "UTC", cfg.Journey.Timezone)
	assert.Equal(t, 10*time.Hour, cfg.Journey.Defaults.MaxDailyWork)
	assert.Equal(t, 11*time.Hour+30*time.Minute, cfg.Journey.Defaults.MinRestBetweenShifts)
	assert.False(t, cfg.Journey.Defaults.RequireLocationOnEvents)
	assert.Equal(t, 2*time.Minute, cfg.Journey.Defaults.ClockSkewTolerance)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jornada.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7000"
  admin_token: from-file
journey:
  timezone: America/Manaus
  company_defaults:
    max_continuous_work: 5h30m
`), 0o600))

	cfg, err := load(lookupFrom(map[string]string{
		"JORNADA_CONFIG_FILE": path,
		"JORNADA_ADDR":        ":7001",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Addr, "environment wins over the file")
	assert.Equal(t, "from-file", cfg.Server.AdminToken)
	assert.Equal(t, "America/Manaus", cfg.Journey.Timezone)
	assert.Equal(t, 5*time.Hour+30*time.Minute, cfg.Journey.Defaults.MaxContinuousWork)
	assert.Equal(t, 8*time.Hour, cfg.Journey.Defaults.MaxDailyWork, "unset keys keep defaults")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad integer", map[string]string{"JORNADA_RATE_LIMIT": "lots"}},
		{"bad hours", map[string]string{"MAX_DAILY_WORK_HOURS": "eight"}},
		{"bad bool", map[string]string{"REQUIRE_LOCATION_ON_EVENTS": "maybe"}},
		{"bad duration", map[string]string{"JORNADA_SHUTDOWN_TIMEOUT": "10"}},
		{"unknown timezone", map[string]string{"JORNADA_TIMEZONE": "Mars/Olympus"}},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"missing config file", map[string]string{"JORNADA_CONFIG_FILE": "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(lookupFrom(tt.env))
			assert.Error(t, err)
		})
	}

	t.Run("unknown yaml key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jornada.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 80\n"), 0o600))
		_, err := load(lookupFrom(map[string]string{"JORNADA_CONFIG_FILE": path}))
		assert.Error(t, err)
	})
}
