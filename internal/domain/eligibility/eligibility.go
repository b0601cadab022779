// Package eligibility decides whether a team may enter matchmaking.
package eligibility

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/padel/internal/domain/model"
)

// Options tunes a single check.
type Options struct {
	Friendly bool
	// Now is used to render cooldown reasons. Zero means time.Now.
	Now time.Time
}

// Result is the verdict plus a reason suitable for display.
type Result struct {
	Eligible bool
	Reason   string
}

var ok = Result{Eligible: true}

func deny(reason string) Result { return Result{Reason: reason} }

// Check evaluates team against the matchmaking rules. The first failing rule
// wins. Check has no side effects and is safe for concurrent use.
func Check(team *model.Team, disputed map[string]struct{}, opts Options) Result {
	if team == nil {
		return deny("Team not found")
	}
	if !team.RosterComplete() {
		return deny("Team is missing a second player")
	}
	if team.Name == "" {
		return deny("Team has no name")
	}

	switch team.Status {
	case model.TeamInMatch:
		return deny("Team is already in a match")
	case model.TeamCooldown:
		if !opts.Friendly {
			return deny(cooldownReason(team, opts.Now))
		}
	case model.TeamUnavailable:
		return deny("Team is unavailable")
	case model.TeamInactive:
		return deny("Team is inactive")
	}

	if _, found := disputed[team.ID]; found {
		return deny("Team has an open dispute")
	}
	if !model.StatusIn(team.Status, model.AllowedStatuses(opts.Friendly)) {
		return deny(fmt.Sprintf("Team status %s cannot enter matchmaking", team.Status))
	}
	return ok
}

func cooldownReason(team *model.Team, now time.Time) string {
	if team.CooldownExpiresAt == nil {
		return "Team is in cooldown"
	}
	if now.IsZero() {
		now = time.Now()
	}
	days := int(math.Ceil(team.CooldownExpiresAt.Sub(now).Hours() / 24))
	if days < 1 {
		days = 1
	}
	if days == 1 {
		return "In cooldown for 1 more day"
	}
	return fmt.Sprintf("In cooldown for %d more days", days)
}
