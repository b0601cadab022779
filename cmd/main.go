package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/padel/internal/adapters/http/api"
	"github.com/okian/padel/internal/adapters/http/swagger"
	"github.com/okian/padel/internal/adapters/notify"
	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/adapters/repository/gormstore"
	service "github.com/okian/padel/internal/app"
	"github.com/okian/padel/internal/config"
	"github.com/okian/padel/internal/domain/scoring"
	"github.com/okian/padel/internal/fixtures"
	"github.com/okian/padel/internal/scheduler"
	"github.com/okian/padel/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 15 * time.Second
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := logger.Init(logger.WithFormat(os.Getenv(config.EnvPrefix + "LOG_FORMAT"))); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	if cfg.SeedClubs > 0 {
		teams := fixtures.Generate(fixtures.Spec{Clubs: cfg.SeedClubs, TeamsPerClub: cfg.SeedTeamsPerClub})
		if _, err := fixtures.Seed(ctx, store, teams); err != nil {
			return fmt.Errorf("failed to seed league: %w", err)
		}
	}

	var svc *service.Service
	hub := notify.NewHub(notify.WithOnConnect(func(userID string) {
		if _, err := svc.DeliverPending(ctx, userID); err != nil {
			log.Warn(ctx, "backlog delivery failed", logger.String("user_id", userID), logger.Error(err))
		}
	}))
	defer func() { _ = hub.Close() }()

	svc = newService(cfg, store, hub)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	sched := scheduler.New()
	if err := svc.RegisterSweeps(sched, schedulesFrom(cfg)); err != nil {
		_ = svc.Stop(context.Background())
		return fmt.Errorf("failed to register sweeps: %w", err)
	}
	sched.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, hub),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Error(ctx, "scheduler shutdown failed", logger.Error(err))
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			log.Error(ctx, "service shutdown failed", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// openStore picks the repository named by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		level := gormlogger.Warn
		if cfg.LogLevel == "debug" {
			level = gormlogger.Info
		}
		st, err := gormstore.Open(ctx, cfg.DatabaseDSN, gormstore.WithLogLevel(level))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	default:
		return repository.NewMemStore(), nil
	}
}

func newService(cfg *config.Config, store repository.Store, hub *notify.Hub) *service.Service {
	rules := scoring.NewRules(
		scoring.WithWinPoints(cfg.WinPoints),
		scoring.WithCooldown(cfg.Cooldown()),
	)
	return service.New(
		service.WithLogger(logger.Get().Named("service")),
		service.WithStore(store),
		service.WithSink(hub),
		service.WithRules(rules),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithRecentOpponents(cfg.RecentOpponents),
		service.WithConfirmationWindow(cfg.ConfirmationWindow()),
		service.WithMatchDeadline(cfg.MatchDeadline()),
		service.WithInactivityAfter(cfg.InactivityAfter()),
		service.WithRedeliveryGrace(cfg.RedeliveryGrace()),
	)
}

func schedulesFrom(cfg *config.Config) service.Schedules {
	return service.Schedules{
		AutoConfirm:  cfg.ScheduleAutoConfirm,
		QueuedRetry:  cfg.ScheduleQueuedRetry,
		Cooldown:     cfg.ScheduleCooldown,
		Inactivity:   cfg.ScheduleInactivity,
		Availability: cfg.ScheduleAvailability,
		Redelivery:   cfg.ScheduleRedelivery,
	}
}

// newMux wires the documentation and the business API.
func newMux(ctx context.Context, cfg *config.Config, svc *service.Service, hub *notify.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, api.NewAuthenticator(cfg.JWTSecret), api.WithSubscriber(hub)).Register(mux)
	return mux
}

// startServiceMetricsUpdater refreshes the status gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.GetStats(ctx); err != nil {
				logger.Get().Warn(ctx, "stats refresh failed", logger.Error(err))
			}
		}
	}
}
