// Package loadtest drives concurrent matchmaking against a running service
// and verifies that no team was booked twice.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/padel/internal/adapters/http/api"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/internal/fixtures"
	"github.com/okian/padel/pkg/logger"
)

const (
	workerChannelMultiplier = 2
	tokenTTL                = time.Hour
	percentageMultiplier    = 100
)

// ErrViolations is returned when a team holds more than one open match.
var ErrViolations = errors.New("teams with more than one open match")

// captain is one team and the token its captain acts with.
type captain struct {
	team  model.Team
	token string
}

// Run executes the complete load test.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("loadtest")

	log.Info(ctx, "starting league load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("clubs", config.Clubs),
		logger.Int("teamsPerClub", config.TeamsPerClub),
		logger.Int("rounds", config.Rounds),
		logger.Int("workers", config.Workers),
	)

	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	captains, err := captainsFor(config)
	if err != nil {
		return stats, err
	}

	for round := 1; round <= config.Rounds; round++ {
		if err := submitSearches(ctx, config, captains, stats); err != nil {
			return stats, fmt.Errorf("round %d: %w", round, err)
		}
	}

	if err := verifyMatches(ctx, config, captains, stats); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if stats.Violations > 0 {
		return stats, fmt.Errorf("%w: %d", ErrViolations, stats.Violations)
	}
	log.Info(ctx, "load test completed successfully")
	return stats, nil
}

// captainsFor rebuilds the seeded league and signs a token per captain.
func captainsFor(config *Config) ([]captain, error) {
	auth := api.NewAuthenticator(config.Secret)
	teams := fixtures.Generate(fixtures.Spec{Clubs: config.Clubs, TeamsPerClub: config.TeamsPerClub})
	out := make([]captain, 0, len(teams))
	for i := range teams {
		tok, err := auth.IssueToken(model.Identity{
			UserID: teams[i].CaptainID,
			ClubID: teams[i].ClubID,
			Role:   model.RolePlayer,
		}, tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		out = append(out, captain{team: teams[i], token: tok})
	}
	return out, nil
}

// submitSearches sends one search per captain through a worker pool.
func submitSearches(ctx context.Context, config *Config, captains []captain, stats *Stats) error {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/v1/matches/find"
	log := logger.Get().Named("loadtest")

	var counts [resultFailed + 1]int64
	work := make(chan captain, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				if ctx.Err() != nil {
					continue
				}
				res := findOnce(ctx, client, url, c)
				atomic.AddInt64(&counts[res], 1)
				if config.Verbose {
					log.Debug(ctx, "search done",
						logger.String("team_id", c.team.ID),
						logger.Int("result", int(res)),
					)
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, c := range captains {
			select {
			case <-ctx.Done():
				return
			case work <- c:
			}
		}
	}()
	wg.Wait()

	stats.Searches += len(captains)
	stats.Matched += int(counts[resultMatched])
	stats.NoOpponent += int(counts[resultNoOpponent])
	stats.Conflicts += int(counts[resultConflict])
	stats.Rejected += int(counts[resultRejected])
	stats.Failed += int(counts[resultFailed])
	return ctx.Err()
}

type findBody struct {
	Matched bool   `json:"matched"`
	Code    string `json:"code"`
}

// findOnce classifies the answer to one search.
func findOnce(ctx context.Context, client *HTTPClient, url string, c captain) findResult {
	resp, err := client.Post(ctx, url, c.token, map[string]string{"team_id": c.team.ID})
	if err != nil {
		return resultFailed
	}
	var body findBody
	if err := decodeBody(resp, &body); err != nil {
		return resultFailed
	}
	switch {
	case resp.StatusCode == http.StatusCreated && body.Matched:
		return resultMatched
	case resp.StatusCode == http.StatusOK && !body.Matched:
		return resultNoOpponent
	case resp.StatusCode == http.StatusConflict && body.Code == "conflict":
		return resultConflict
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		return resultRejected
	default:
		return resultFailed
	}
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz", "")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	_ = resp.Body.Close()

	// /healthz answers with Prometheus metrics; any 200 is healthy.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var matchRate, searchesPerSecond float64
	if stats.Searches > 0 {
		matchRate = float64(stats.Matched) / float64(stats.Searches) * percentageMultiplier
	}
	if stats.Duration > 0 {
		searchesPerSecond = float64(stats.Searches) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("searches", stats.Searches),
		logger.Int("matched", stats.Matched),
		logger.Int("noOpponent", stats.NoOpponent),
		logger.Int("conflicts", stats.Conflicts),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("openMatches", stats.OpenMatches),
		logger.Int("violations", stats.Violations),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("matchRate", matchRate),
		logger.Float64("searchesPerSecond", searchesPerSecond),
	)
}
