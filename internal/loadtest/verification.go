package loadtest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
)

const historyLimit = 100

// verifyMatches reads every team's history and counts teams holding more
// than one open match.
func verifyMatches(ctx context.Context, config *Config, captains []captain, stats *Stats) error {
	client := newHTTPClient(config.Timeout)
	open := map[string]struct{}{}

	for _, c := range captains {
		url := fmt.Sprintf("%s/v1/teams/%s/matches?limit=%d", config.BaseURL, c.team.ID, historyLimit)
		resp, err := client.Get(ctx, url, c.token)
		if err != nil {
			return fmt.Errorf("read %s: %w", c.team.ID, err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return fmt.Errorf("read %s: status %d", c.team.ID, resp.StatusCode)
		}
		var matches []model.Match
		if err := decodeBody(resp, &matches); err != nil {
			return fmt.Errorf("decode %s: %w", c.team.ID, err)
		}
		stats.TeamsRead++

		n := 0
		for i := range matches {
			if matches[i].Status.Terminal() {
				continue
			}
			n++
			open[matches[i].ID] = struct{}{}
		}
		if n > 1 {
			stats.Violations++
			logger.Get().Error(ctx, "team holds more than one open match",
				logger.String("team_id", c.team.ID),
				logger.Int("open", n),
			)
		}
	}
	stats.OpenMatches = len(open)
	return nil
}
