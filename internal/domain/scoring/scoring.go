// Package scoring applies the league point system to a finished match.
package scoring

import (
	"time"

	"github.com/okian/padel/internal/domain/model"
)

// Default point system constants.
const (
	DefaultWinPoints  = 3
	DefaultLossPoints = 0
)

// Option applies a configuration option to Rules.
type Option func(*Rules)

// WithWinPoints sets the points awarded for a competitive win.
func WithWinPoints(points int) Option {
	return func(r *Rules) {
		if points > 0 {
			r.winPoints = points
		}
	}
}

// WithCooldown sets how long both sides rest after a competitive match.
func WithCooldown(d time.Duration) Option {
	return func(r *Rules) {
		if d > 0 {
			r.cooldown = d
		}
	}
}

// Rules holds the point system. It is immutable after construction.
type Rules struct {
	winPoints int
	cooldown  time.Duration
}

// NewRules creates the point system with defaults overridden by opts.
func NewRules(opts ...Option) *Rules {
	r := &Rules{
		winPoints: DefaultWinPoints,
		cooldown:  model.DefaultCooldown,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WinPoints returns the points a competitive win is worth.
func (r *Rules) WinPoints() int { return r.winPoints }

// Cooldown returns the rest period after a competitive match.
func (r *Rules) Cooldown() time.Duration { return r.cooldown }

// Outcome summarises what Apply changed, for logging and metrics.
type Outcome struct {
	WinnerID      string
	LoserID       string
	PointsAwarded int
	CooldownUntil *time.Time
}

// Apply updates both teams for a completed match of the given mode.
// Competitive matches put winner and loser into the same cooldown; friendly
// matches only count as played.
func (r *Rules) Apply(mode model.Mode, winner, loser *model.Team, now time.Time) Outcome {
	out := Outcome{WinnerID: winner.ID, LoserID: loser.ID}

	for _, t := range []*model.Team{winner, loser} {
		t.MatchesPlayed++
		completed := now
		t.LastMatchCompletedAt = &completed
	}

	if mode == model.ModeFriendly {
		winner.SetStatus(model.TeamAvailable)
		loser.SetStatus(model.TeamAvailable)
		return out
	}

	winner.Wins++
	winner.Points += r.winPoints
	loser.Losses++
	loser.Points += DefaultLossPoints

	until := now.Add(r.cooldown)
	winner.EnterCooldown(until)
	loser.EnterCooldown(until)

	out.PointsAwarded = r.winPoints
	out.CooldownUntil = &until
	return out
}
