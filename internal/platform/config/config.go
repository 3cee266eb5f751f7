// Package config loads server configuration. Precedence is environment,
// then the optional YAML file named by JORNADA_CONFIG_FILE, then defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	platformstrings "jornada/pkg/platform/strings"
)

// Config is the full server configuration.
type Config struct {
	Server   Server         `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Log      LogConfig      `yaml:"log"`
	Journey  JourneyConfig  `yaml:"journey"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	AdminToken      string        `yaml:"admin_token"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is the number of requests a driver may make per RateWindow.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// DatabaseConfig selects Postgres persistence when URL is set; otherwise the
// server keeps everything in memory.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	SummaryTTL   time.Duration `yaml:"summary_ttl"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"audit_topic"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JourneyConfig holds the rule engine settings.
type JourneyConfig struct {
	Timezone               string          `yaml:"timezone"`
	RecalculateConcurrency int             `yaml:"recalculate_concurrency"`
	Defaults               CompanyDefaults `yaml:"company_defaults"`
}

// CompanyDefaults are the labour limits given to new companies.
type CompanyDefaults struct {
	MaxDailyWork            time.Duration `yaml:"max_daily_work"`
	MinRestBetweenShifts    time.Duration `yaml:"min_rest_between_shifts"`
	MaxContinuousWork       time.Duration `yaml:"max_continuous_work"`
	RequireLocationOnEvents bool          `yaml:"require_location_on_events"`
	ClockSkewTolerance      time.Duration `yaml:"clock_skew_tolerance"`
}

// Location resolves the configured timezone.
func (j JourneyConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", j.Timezone, err)
	}
	return loc, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       120,
			RateWindow:      time.Minute,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			SummaryTTL:   24 * time.Hour,
		},
		Kafka: KafkaConfig{AuditTopic: "journey.audit"},
		Log:   LogConfig{Level: "info", Format: "json"},
		Journey: JourneyConfig{
			Timezone:               "America/Sao_Paulo",
			RecalculateConcurrency: 4,
			Defaults: CompanyDefaults{
				MaxDailyWork:            8 * time.Hour,
				MinRestBetweenShifts:    11 * time.Hour,
				MaxContinuousWork:       4 * time.Hour,
				RequireLocationOnEvents: true,
				ClockSkewTolerance:      5 * time.Minute,
			},
		},
	}
}

// FromEnv builds the configuration so main stays lean.
func FromEnv() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	if path, ok := lookup("JORNADA_CONFIG_FILE"); ok && path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	env := envReader{lookup: lookup}
	env.str("JORNADA_ADDR", &cfg.Server.Addr)
	env.str("JORNADA_ADMIN_TOKEN", &cfg.Server.AdminToken)
	env.duration("JORNADA_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	env.integer("JORNADA_RATE_LIMIT", &cfg.Server.RateLimit)
	env.duration("JORNADA_RATE_WINDOW", &cfg.Server.RateWindow)

	env.str("DATABASE_URL", &cfg.Database.URL)
	env.integer("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	env.integer("DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)

	env.str("REDIS_URL", &cfg.Redis.URL)
	env.integer("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	env.duration("REDIS_SUMMARY_TTL", &cfg.Redis.SummaryTTL)

	env.list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	env.str("KAFKA_AUDIT_TOPIC", &cfg.Kafka.AuditTopic)

	env.str("LOG_LEVEL", &cfg.Log.Level)
	env.str("LOG_FORMAT", &cfg.Log.Format)

	env.str("JORNADA_TIMEZONE", &cfg.Journey.Timezone)
	env.integer("JORNADA_RECALCULATE_CONCURRENCY", &cfg.Journey.RecalculateConcurrency)
	env.hours("MAX_DAILY_WORK_HOURS", &cfg.Journey.Defaults.MaxDailyWork)
	env.hours("MIN_REST_BETWEEN_SHIFTS_HOURS", &cfg.Journey.Defaults.MinRestBetweenShifts)
	env.hours("MAX_CONTINUOUS_WORK_HOURS", &cfg.Journey.Defaults.MaxContinuousWork)
	env.boolean("REQUIRE_LOCATION_ON_EVENTS", &cfg.Journey.Defaults.RequireLocationOnEvents)
	env.minutes("CLOCK_SKEW_TOLERANCE_MINUTES", &cfg.Journey.Defaults.ClockSkewTolerance)

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if _, err := c.Journey.Location(); err != nil {
		return err
	}
	if c.Journey.RecalculateConcurrency <= 0 {
		return fmt.Errorf("recalculate concurrency must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return fmt.Errorf("kafka audit topic is required when brokers are set")
	}
	return nil
}

func mergeFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// envReader applies set variables over cfg and keeps the first parse error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) value(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	*dst = platformstrings.SplitList(v, ",")
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

func (e *envReader) scaled(key string, unit time.Duration, dst *time.Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = time.Duration(f * float64(unit))
}

func (e *envReader) hours(key string, dst *time.Duration) {
	e.scaled(key, time.Hour, dst)
}

func (e *envReader) minutes(key string, dst *time.Duration) {
	e.scaled(key, time.Minute, dst)
}
