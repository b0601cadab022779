// Package fixtures builds a deterministic demo league and loads it into a
// store.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
)

const (
	defaultSeed        = 2025
	maxStartingPoints  = 60
	seedConcurrency    = 4
	pendingPartnerEach = 10
	friendlyEach       = 5
	singlesEach        = 7
)

var levels = []model.Level{
	model.LevelBeginner,
	model.LevelIntermediate,
	model.LevelIntermediate,
	model.LevelAdvanced,
	model.LevelVeryCompetitive,
}

// Spec sizes a generated league.
type Spec struct {
	Clubs        int
	TeamsPerClub int
	// Seed makes points reproducible. Zero uses a fixed default.
	Seed uint64
	Now  time.Time
}

// ClubID names the i-th club, counting from 1.
func ClubID(i int) string { return fmt.Sprintf("club-%02d", i) }

// TeamID names the j-th team of club i.
func TeamID(club, team int) string { return fmt.Sprintf("club-%02d-team-%02d", club, team) }

// CaptainID names the captain of TeamID(club, team).
func CaptainID(club, team int) string { return fmt.Sprintf("captain-%02d-%02d", club, team) }

// Generate returns the teams of the league described by spec. Every fifth
// team plays friendly, every seventh plays singles and every other tenth
// team still waits for a partner.
func Generate(spec Spec) []model.Team {
	seed := spec.Seed
	if seed == 0 {
		seed = defaultSeed
	}
	now := spec.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	teams := make([]model.Team, 0, spec.Clubs*spec.TeamsPerClub)
	for c := 1; c <= spec.Clubs; c++ {
		for j := 1; j <= spec.TeamsPerClub; j++ {
			n := (c-1)*spec.TeamsPerClub + j
			t := model.Team{
				ID:        TeamID(c, j),
				ClubID:    ClubID(c),
				Name:      fmt.Sprintf("Team %02d", j),
				CaptainID: CaptainID(c, j),
				PartnerID: fmt.Sprintf("partner-%02d-%02d", c, j),
				Level:     levels[(j-1)%len(levels)],
				Mode:      model.ModeCompetitive,
				Squad:     model.SquadDoubles,
				Status:    model.TeamAvailable,
				Points:    rng.IntN(maxStartingPoints),
				CreatedAt: now.Add(time.Duration(n) * time.Second),
			}
			if j%friendlyEach == 0 {
				t.Mode = model.ModeFriendly
			}
			switch {
			case j%singlesEach == 0:
				t.Squad = model.SquadSingles
				t.PartnerID = ""
			case j%pendingPartnerEach == 0:
				t.PartnerID = ""
				t.Status = model.TeamPendingPartner
			}
			t.UpdatedAt = t.CreatedAt
			teams = append(teams, t)
		}
	}
	return teams
}

// Seed writes teams to store, one transaction per club. Teams that already
// exist are skipped, so seeding twice is harmless. It returns the number of
// teams created.
func Seed(ctx context.Context, store repository.Store, teams []model.Team) (int, error) {
	byClub := map[string][]model.Team{}
	var clubs []string
	for _, t := range teams {
		if _, ok := byClub[t.ClubID]; !ok {
			clubs = append(clubs, t.ClubID)
		}
		byClub[t.ClubID] = append(byClub[t.ClubID], t)
	}

	created := make([]int, len(clubs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for i, club := range clubs {
		g.Go(func() error {
			n, err := seedClub(gctx, store, byClub[club])
			if err != nil {
				return fmt.Errorf("seed %s: %w", club, err)
			}
			created[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range created {
		total += n
	}
	logger.Get().Named("fixtures").Info(ctx, "league seeded",
		logger.Int("clubs", len(clubs)),
		logger.Int("teams", len(teams)),
		logger.Int("created", total),
	)
	return total, nil
}

func seedClub(ctx context.Context, store repository.Store, teams []model.Team) (int, error) {
	n := 0
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		n = 0
		for i := range teams {
			_, err := tx.GetTeam(ctx, teams[i].ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			t := teams[i]
			if err := tx.CreateTeam(ctx, &t); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
