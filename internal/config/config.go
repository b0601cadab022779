// Package config defines service configuration and its defaults.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/padel/internal/scheduler"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or postgres.
	Store string `koanf:"store"`

	// DatabaseDSN is the postgres connection string.
	DatabaseDSN string `koanf:"database_dsn"`

	// JWTSecret signs and verifies bearer tokens (HS256).
	JWTSecret string `koanf:"jwt_secret"`

	// WorkerCount sets the number of notification workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory notification queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets the size of the delivered-notification cache.
	DedupeSize int `koanf:"dedupe_size"`

	CooldownDays      int `koanf:"cooldown_days"`
	ConfirmationHours int `koanf:"confirmation_hours"`
	MatchDeadlineDays int `koanf:"match_deadline_days"`
	InactivityDays    int `koanf:"inactivity_days"`
	WinPoints         int `koanf:"win_points"`

	// RecentOpponents is how many past opponents matchmaking tries to avoid.
	RecentOpponents int `koanf:"recent_opponents"`

	// Cron specs for the sweeps. An empty spec disables the job.
	ScheduleAutoConfirm  string `koanf:"schedule_auto_confirm"`
	ScheduleQueuedRetry  string `koanf:"schedule_queued_retry"`
	ScheduleCooldown     string `koanf:"schedule_cooldown"`
	ScheduleInactivity   string `koanf:"schedule_inactivity"`
	ScheduleAvailability string `koanf:"schedule_availability"`
	ScheduleRedelivery   string `koanf:"schedule_redelivery"`

	// RedeliveryGraceSeconds is how long a notification may stay pending
	// before the redelivery sweep queues it again.
	RedeliveryGraceSeconds int `koanf:"redelivery_grace_seconds"`

	// SeedClubs and SeedTeamsPerClub size the demo league. Zero clubs
	// disables seeding of the in-memory store.
	SeedClubs        int `koanf:"seed_clubs"`
	SeedTeamsPerClub int `koanf:"seed_teams_per_club"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		Store:                  StoreMemory,
		JWTSecret:              "change-me",
		WorkerCount:            runtime.NumCPU() * 2,
		QueueSize:              10_000,
		DedupeSize:             50_000,
		CooldownDays:           7,
		ConfirmationHours:      48,
		MatchDeadlineDays:      7,
		InactivityDays:         30,
		WinPoints:              3,
		RecentOpponents:        2,
		ScheduleAutoConfirm:    "0 * * * *",
		ScheduleQueuedRetry:    "30 * * * *",
		ScheduleCooldown:       "0 3 * * *",
		ScheduleInactivity:     "30 3 * * *",
		ScheduleAvailability:   "0 4 * * *",
		ScheduleRedelivery:     "@every 30s",
		RedeliveryGraceSeconds: 30,
		SeedTeamsPerClub:       12,
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return invalid("database_dsn is required for the postgres store")
		}
	default:
		return invalid(fmt.Sprintf("unknown store %q", c.Store))
	}
	if c.JWTSecret == "" {
		return invalid("jwt_secret must not be empty")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return invalid(fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}

	positive := []struct {
		name string
		v    int
	}{
		{"queue_size", c.QueueSize},
		{"dedupe_size", c.DedupeSize},
		{"cooldown_days", c.CooldownDays},
		{"confirmation_hours", c.ConfirmationHours},
		{"match_deadline_days", c.MatchDeadlineDays},
		{"inactivity_days", c.InactivityDays},
		{"win_points", c.WinPoints},
		{"redelivery_grace_seconds", c.RedeliveryGraceSeconds},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return invalid(fmt.Sprintf("%s must be positive", p.name))
		}
	}
	if c.RecentOpponents < 0 || c.SeedClubs < 0 || c.SeedTeamsPerClub < 0 {
		return invalid("recent_opponents and seed sizes must not be negative")
	}

	for name, spec := range c.schedules() {
		if spec == "" {
			continue
		}
		if err := scheduler.ParseSpec(spec); err != nil {
			return fmt.Errorf("%w: schedule_%s: %w", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

func (c *Config) schedules() map[string]string {
	return map[string]string{
		"auto_confirm": c.ScheduleAutoConfirm,
		"queued_retry": c.ScheduleQueuedRetry,
		"cooldown":     c.ScheduleCooldown,
		"inactivity":   c.ScheduleInactivity,
		"availability": c.ScheduleAvailability,
		"redelivery":   c.ScheduleRedelivery,
	}
}

func (c *Config) Cooldown() time.Duration { return time.Duration(c.CooldownDays) * 24 * time.Hour }

func (c *Config) ConfirmationWindow() time.Duration {
	return time.Duration(c.ConfirmationHours) * time.Hour
}

func (c *Config) MatchDeadline() time.Duration {
	return time.Duration(c.MatchDeadlineDays) * 24 * time.Hour
}

func (c *Config) InactivityAfter() time.Duration {
	return time.Duration(c.InactivityDays) * 24 * time.Hour
}

func (c *Config) RedeliveryGrace() time.Duration {
	return time.Duration(c.RedeliveryGraceSeconds) * time.Second
}
