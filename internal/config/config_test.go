package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/padel/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.WinPoints, convey.ShouldEqual, 3)
			convey.So(cfg.RecentOpponents, convey.ShouldEqual, 2)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the windows convert to durations", func() {
			convey.So(cfg.Cooldown(), convey.ShouldEqual, 7*24*time.Hour)
			convey.So(cfg.ConfirmationWindow(), convey.ShouldEqual, 48*time.Hour)
			convey.So(cfg.MatchDeadline(), convey.ShouldEqual, 7*24*time.Hour)
			convey.So(cfg.InactivityAfter(), convey.ShouldEqual, 30*24*time.Hour)
			convey.So(cfg.RedeliveryGrace(), convey.ShouldEqual, 30*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }, "addr must not be empty"},
		{"unknown store", func(c *config.Config) { c.Store = "mongo" }, `unknown store "mongo"`},
		{"postgres without dsn", func(c *config.Config) { c.Store = config.StorePostgres }, "database_dsn is required"},
		{"empty secret", func(c *config.Config) { c.JWTSecret = "" }, "jwt_secret"},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format"},
		{"zero cooldown", func(c *config.Config) { c.CooldownDays = 0 }, "cooldown_days must be positive"},
		{"negative window", func(c *config.Config) { c.ConfirmationHours = -1 }, "confirmation_hours must be positive"},
		{"negative seed", func(c *config.Config) { c.SeedClubs = -1 }, "must not be negative"},
		{"bad cron", func(c *config.Config) { c.ScheduleCooldown = "every day" }, "schedule_cooldown"},
	}

	convey.Convey("Given invalid settings", t, func() {
		for _, tc := range cases {
			convey.Convey("When the config has "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, tc.want)
			})
		}
	})

	convey.Convey("Given a postgres config with a dsn and a disabled job", t, func() {
		cfg := config.New()
		cfg.Store = config.StorePostgres
		cfg.DatabaseDSN = "postgres://padel@localhost/padel"
		cfg.ScheduleInactivity = ""

		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
