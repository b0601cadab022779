// Command seed loads the demo league into the configured store.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/padel/internal/adapters/repository/gormstore"
	"github.com/okian/padel/internal/config"
	"github.com/okian/padel/internal/fixtures"
	"github.com/okian/padel/pkg/logger"
)

const seedTimeout = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	var (
		clubs = flag.Int("clubs", 0, "Clubs to create (default: seed_clubs from config, or 4)")
		teams = flag.Int("teams", 0, "Teams per club (default: seed_teams_per_club from config)")
		seed  = flag.Uint64("seed", 1, "Random seed for levels and points")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get().Named("seed")

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1) //nolint:gocritic // nothing to release yet
	}
	if cfg.Store != config.StorePostgres {
		log.Error(ctx, "seeding needs a persistent store; set PADEL_STORE=postgres", logger.String("store", cfg.Store))
		os.Exit(1)
	}

	spec := fixtures.Spec{Clubs: cfg.SeedClubs, TeamsPerClub: cfg.SeedTeamsPerClub, Seed: *seed}
	if *clubs > 0 {
		spec.Clubs = *clubs
	}
	if spec.Clubs == 0 {
		spec.Clubs = 4
	}
	if *teams > 0 {
		spec.TeamsPerClub = *teams
	}

	store, err := gormstore.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	n, err := fixtures.Seed(ctx, store, fixtures.Generate(spec))
	if err != nil {
		log.Error(ctx, "seeding failed", logger.Error(err))
		_ = store.Close()
		os.Exit(1)
	}
	log.Info(ctx, "league seeded", logger.Int("created", n), logger.Int("clubs", spec.Clubs))
}
