// Package model contains the league entities shared by every layer.
package model

import (
	"strings"
	"time"
)

// Level is an ordered experience band. The zero value means unset or legacy.
type Level int

const (
	LevelUnset Level = iota
	LevelBeginner
	LevelIntermediate
	LevelAdvanced
	LevelVeryCompetitive
)

var levelNames = map[Level]string{
	LevelBeginner:        "BEGINNER",
	LevelIntermediate:    "INTERMEDIATE",
	LevelAdvanced:        "ADVANCED",
	LevelVeryCompetitive: "VERY_COMPETITIVE",
}

// ParseLevel maps a stored band name to a Level. Unknown and legacy free-text
// values map to LevelUnset instead of failing.
func ParseLevel(s string) Level {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	for lvl, name := range levelNames {
		if name == norm {
			return lvl
		}
	}
	return LevelUnset
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return ""
}

// Valid reports whether l is one of the four bands.
func (l Level) Valid() bool {
	return l >= LevelBeginner && l <= LevelVeryCompetitive
}

// Adjacent returns the bands one step above and below l. BEGINNER and
// VERY_COMPETITIVE are never paired, whatever the distance.
func (l Level) Adjacent() []Level {
	if !l.Valid() {
		return nil
	}
	var out []Level
	for _, other := range []Level{l - 1, l + 1} {
		if other.Valid() && !ForbiddenPairing(l, other) {
			out = append(out, other)
		}
	}
	return out
}

// ForbiddenPairing reports whether two bands may never meet.
func ForbiddenPairing(a, b Level) bool {
	return (a == LevelBeginner && b == LevelVeryCompetitive) ||
		(a == LevelVeryCompetitive && b == LevelBeginner)
}

// MarshalText stores the band name; unset levels serialise as "".
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText never fails; unknown names become LevelUnset.
func (l *Level) UnmarshalText(b []byte) error {
	*l = ParseLevel(string(b))
	return nil
}

// Mode decides cooldown and point accounting.
type Mode string

const (
	ModeCompetitive Mode = "COMPETITIVE"
	ModeFriendly    Mode = "FRIENDLY"
)

// ModeFor returns the mode a friendly flag selects.
func ModeFor(friendly bool) Mode {
	if friendly {
		return ModeFriendly
	}
	return ModeCompetitive
}

// Squad is the number of players per side.
type Squad string

const (
	SquadSingles Squad = "1v1"
	SquadDoubles Squad = "2v2"
)

// TeamStatus is the matchmaking state of a team.
type TeamStatus string

const (
	TeamPendingPartner TeamStatus = "PENDING_PARTNER"
	TeamAvailable      TeamStatus = "AVAILABLE"
	TeamInMatch        TeamStatus = "IN_MATCH"
	TeamCooldown       TeamStatus = "COOLDOWN"
	TeamUnavailable    TeamStatus = "UNAVAILABLE"
	TeamInactive       TeamStatus = "INACTIVE"
)

// TeamStatuses lists every valid team status.
var TeamStatuses = []TeamStatus{
	TeamPendingPartner, TeamAvailable, TeamInMatch, TeamCooldown, TeamUnavailable, TeamInactive,
}

// Valid reports whether s is a known status.
func (s TeamStatus) Valid() bool {
	for _, v := range TeamStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// AllowedStatuses returns the statuses from which a team may enter a match.
func AllowedStatuses(friendly bool) []TeamStatus {
	if friendly {
		return []TeamStatus{TeamAvailable, TeamCooldown}
	}
	return []TeamStatus{TeamAvailable}
}

// StatusIn reports whether s is one of set.
func StatusIn(s TeamStatus, set []TeamStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Team is a pair (or single player) competing inside one club.
type Team struct {
	ID        string `json:"id"`
	ClubID    string `json:"club_id"`
	Name      string `json:"name"`
	CaptainID string `json:"captain_id"`
	PartnerID string `json:"partner_id,omitempty"`

	Level Level `json:"level"`
	Mode  Mode  `json:"mode"`
	Squad Squad `json:"squad"`

	Status            TeamStatus `json:"status"`
	CooldownExpiresAt *time.Time `json:"cooldown_expires_at,omitempty"`
	UnavailableUntil  *time.Time `json:"unavailable_until,omitempty"`
	LastOpponentID    string     `json:"last_opponent_id,omitempty"`
	Queued            bool       `json:"queued"`

	Points               int        `json:"points"`
	Wins                 int        `json:"wins"`
	Losses               int        `json:"losses"`
	MatchesPlayed        int        `json:"matches_played"`
	LastMatchCompletedAt *time.Time `json:"last_match_completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RosterComplete reports whether the team has every player it needs.
func (t *Team) RosterComplete() bool {
	return t.Squad == SquadSingles || t.PartnerID != ""
}

// HasPlayer reports whether userID plays for the team.
func (t *Team) HasPlayer(userID string) bool {
	return userID != "" && (t.CaptainID == userID || t.PartnerID == userID)
}

// LastActivity is the reference time for inactivity detection.
func (t *Team) LastActivity() time.Time {
	if t.LastMatchCompletedAt != nil {
		return *t.LastMatchCompletedAt
	}
	return t.CreatedAt
}

// EnterCooldown moves the team to COOLDOWN until the given time.
func (t *Team) EnterCooldown(until time.Time) {
	t.Status = TeamCooldown
	t.CooldownExpiresAt = &until
}

// SetStatus changes status and keeps the cooldown invariant: the expiry is
// only ever set while the team is in COOLDOWN.
func (t *Team) SetStatus(s TeamStatus) {
	t.Status = s
	if s != TeamCooldown {
		t.CooldownExpiresAt = nil
	}
	if s != TeamUnavailable {
		t.UnavailableUntil = nil
	}
}
