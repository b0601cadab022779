package model

import (
	"strings"
	"time"
)

// Cadence windows. Services may override them through options.
const (
	WeekLength             = 7 * 24 * time.Hour
	DefaultMatchDeadline   = 7 * 24 * time.Hour
	DefaultCooldown        = 7 * 24 * time.Hour
	DefaultConfirmWindow   = 48 * time.Hour
	DefaultInactivityAfter = 30 * 24 * time.Hour
)

// MatchStatus is a lifecycle state.
type MatchStatus string

const (
	MatchProposed             MatchStatus = "PROPOSED"
	MatchAccepted             MatchStatus = "ACCEPTED"
	MatchScheduled            MatchStatus = "SCHEDULED"
	MatchAwaitingConfirmation MatchStatus = "AWAITING_CONFIRMATION"
	MatchCompleted            MatchStatus = "COMPLETED"
	MatchDisputed             MatchStatus = "DISPUTED"
)

// MatchStatuses lists every lifecycle state.
var MatchStatuses = []MatchStatus{
	MatchProposed, MatchAccepted, MatchScheduled, MatchAwaitingConfirmation, MatchCompleted, MatchDisputed,
}

// Terminal reports whether no captain action can move the match further.
// DISPUTED waits for an admin decision and counts as terminal here.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchDisputed
}

// Outcome is a result seen from one side.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// ParseOutcome accepts WIN or LOSS in any case.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(strings.ToUpper(strings.TrimSpace(s))) {
	case OutcomeWin:
		return OutcomeWin, true
	case OutcomeLoss:
		return OutcomeLoss, true
	}
	return "", false
}

// Invert flips the perspective of an outcome.
func (o Outcome) Invert() Outcome {
	if o == OutcomeWin {
		return OutcomeLoss
	}
	return OutcomeWin
}

// Match pairs two teams of the same club. Result is always team A's view.
type Match struct {
	ID      string      `json:"id"`
	ClubID  string      `json:"club_id"`
	TeamAID string      `json:"team_a_id"`
	TeamBID string      `json:"team_b_id"`
	Status  MatchStatus `json:"status"`
	Mode    Mode        `json:"mode"`

	Result               Outcome    `json:"result,omitempty"`
	Score                string     `json:"score,omitempty"`
	SubmittedBy          string     `json:"submitted_by,omitempty"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline,omitempty"`

	WeekCycle   int64      `json:"week_cycle"`
	Deadline    time.Time  `json:"deadline"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AutoConfirmed bool      `json:"auto_confirmed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WeekCycle buckets t into a 7-day epoch window.
func WeekCycle(t time.Time) int64 {
	return t.Unix() / int64(WeekLength/time.Second)
}

// Involves reports whether teamID is one of the two sides.
func (m *Match) Involves(teamID string) bool {
	return m.TeamAID == teamID || m.TeamBID == teamID
}

// Opponent returns the other side's team id.
func (m *Match) Opponent(teamID string) string {
	if m.TeamAID == teamID {
		return m.TeamBID
	}
	return m.TeamAID
}

// WinnerLoser resolves team ids from the stored result.
func (m *Match) WinnerLoser() (winner, loser string) {
	if m.Result == OutcomeWin {
		return m.TeamAID, m.TeamBID
	}
	return m.TeamBID, m.TeamAID
}

// RecordResult sets every result field at once.
func (m *Match) RecordResult(resultForA Outcome, score, submittedBy string, deadline time.Time) {
	m.Status = MatchAwaitingConfirmation
	m.Result = resultForA
	m.Score = score
	m.SubmittedBy = submittedBy
	m.ConfirmationDeadline = &deadline
}

// DisputeStatus tracks the admin workflow of a dispute.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "OPEN"
	DisputeResolved DisputeStatus = "RESOLVED"
)

// Dispute is raised by a captain against a submitted result.
type Dispute struct {
	ID        string        `json:"id"`
	MatchID   string        `json:"match_id"`
	ClubID    string        `json:"club_id"`
	TeamAID   string        `json:"team_a_id"`
	TeamBID   string        `json:"team_b_id"`
	RaisedBy  string        `json:"raised_by"`
	Reason    string        `json:"reason"`
	Status    DisputeStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
