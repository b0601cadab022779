// Package matchmaking picks an opponent for a team from a candidate pool.
package matchmaking

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/padel/internal/domain/eligibility"
	"github.com/okian/padel/internal/domain/model"
)

// Request describes who is searching and how.
type Request struct {
	Team     model.Team
	Friendly bool
	// ExperienceOverride replaces the team's level for this search when it
	// names a band.
	ExperienceOverride string
}

// Pool is the snapshot a search runs against. Candidates may contain the
// requesting team and teams from other clubs; both are filtered out.
type Pool struct {
	Candidates      []model.Team
	Disputed        map[string]struct{}
	RecentOpponents []string
}

// Option configures a Selector.
type Option func(*Selector)

// WithClock overrides the time source used for eligibility reasons.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

// Selector implements the two pass band search.
type Selector struct {
	now func() time.Time
}

// NewSelector creates a Selector.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the best opponent or a *NoOpponentError.
func (s *Selector) Select(req Request, pool Pool) (model.Team, error) {
	self := req.Team
	base := s.baseFilter(req, pool)
	if len(base) == 0 {
		return model.Team{}, &NoOpponentError{Reason: "No other eligible teams in your club right now"}
	}

	level := self.Level
	if override := model.ParseLevel(req.ExperienceOverride); override != model.LevelUnset {
		level = override
	}

	if level == model.LevelUnset {
		if best, found := s.best(req, base, pool); found {
			return best, nil
		}
		return model.Team{}, &NoOpponentError{Reason: "No eligible opponents found in your club"}
	}

	// Pass A: same band.
	same := filter(base, func(t *model.Team) bool { return t.Level == level })
	if best, found := s.best(req, same, pool); found {
		return best, nil
	}

	// Pass B: neighbouring bands.
	adjacent := level.Adjacent()
	near := filter(base, func(t *model.Team) bool {
		for _, l := range adjacent {
			if t.Level == l {
				return true
			}
		}
		return false
	})
	if best, found := s.best(req, near, pool); found {
		return best, nil
	}

	return model.Team{}, &NoOpponentError{
		Reason: fmt.Sprintf("No opponents found at %s or adjacent levels", level),
	}
}

func (s *Selector) baseFilter(req Request, pool Pool) []model.Team {
	self := req.Team
	allowed := model.AllowedStatuses(req.Friendly)
	return filter(pool.Candidates, func(t *model.Team) bool {
		if t.ID == self.ID || t.ClubID != self.ClubID {
			return false
		}
		if self.Squad != "" && t.Squad != self.Squad {
			return false
		}
		if !t.RosterComplete() || !model.StatusIn(t.Status, allowed) {
			return false
		}
		_, disputed := pool.Disputed[t.ID]
		return !disputed
	})
}

// best ranks one pass. Recent opponents are dropped only if someone else is left.
func (s *Selector) best(req Request, candidates []model.Team, pool Pool) (model.Team, bool) {
	opts := eligibility.Options{Friendly: req.Friendly, Now: s.now()}
	eligible := filter(candidates, func(t *model.Team) bool {
		return eligibility.Check(t, pool.Disputed, opts).Eligible
	})
	if len(eligible) == 0 {
		return model.Team{}, false
	}

	recent := make(map[string]struct{}, len(pool.RecentOpponents))
	for _, id := range pool.RecentOpponents {
		recent[id] = struct{}{}
	}
	fresh := filter(eligible, func(t *model.Team) bool {
		_, seen := recent[t.ID]
		return !seen
	})
	if len(fresh) > 0 {
		eligible = fresh
	}

	points := req.Team.Points
	sort.SliceStable(eligible, func(i, j int) bool {
		return distance(eligible[i].Points, points) < distance(eligible[j].Points, points)
	})
	return eligible[0], true
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func filter(in []model.Team, keep func(*model.Team) bool) []model.Team {
	out := make([]model.Team, 0, len(in))
	for i := range in {
		if keep(&in[i]) {
			out = append(out, in[i])
		}
	}
	return out
}
