// Package repository defines the team and match store contract and an
// in-memory implementation of it.
package repository

import (
	"context"
	"time"

	"github.com/okian/padel/internal/domain/model"
)

// TeamFilter narrows ListTeams. Zero fields do not filter.
type TeamFilter struct {
	ClubID   string
	Statuses []model.TeamStatus
	Queued   *bool
	// CooldownBefore keeps teams whose cooldown expiry is at or before it.
	CooldownBefore *time.Time
	// UnavailableBefore keeps teams whose return date is at or before it.
	UnavailableBefore *time.Time
	// ActiveBefore keeps teams whose last completion, or creation when they
	// never played, is at or before it.
	ActiveBefore *time.Time
	Limit        int
}

// MatchFilter narrows ListMatches. Zero fields do not filter.
type MatchFilter struct {
	ClubID   string
	TeamID   string
	Statuses []model.MatchStatus
	// DeadlineBefore keeps matches whose confirmation deadline is at or before it.
	DeadlineBefore *time.Time
	Limit          int
}

// Stats is a point in time count of the store content.
type Stats struct {
	TeamsByStatus        map[model.TeamStatus]int
	MatchesByStatus      map[model.MatchStatus]int
	OpenDisputes         int
	PendingNotifications int
}

// Reader is the read side shared by the store and its transactions.
// Teams are returned ordered by creation time, then id.
type Reader interface {
	GetTeam(ctx context.Context, id string) (model.Team, error)
	GetMatch(ctx context.Context, id string) (model.Match, error)
	ListTeams(ctx context.Context, f TeamFilter) ([]model.Team, error)
	// ListMatches returns matches newest first.
	ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error)
	GetDisputeByMatch(ctx context.Context, matchID string) (model.Dispute, error)
	// DisputedTeamIDs returns both sides of every open dispute, across clubs.
	DisputedTeamIDs(ctx context.Context) (map[string]struct{}, error)
	// RecentOpponents returns the opponents of teamID's last n completed
	// matches, most recent first.
	RecentOpponents(ctx context.Context, teamID string, n int) ([]string, error)
}

// Tx is a unit of work. Nothing it writes is visible outside until InTx
// returns nil.
type Tx interface {
	Reader

	// CreateTeam fails with ErrConflict when the name is taken in the club.
	CreateTeam(ctx context.Context, t *model.Team) error
	CreateMatch(ctx context.Context, m *model.Match) error
	// CreateDispute fails with ErrConflict when the match already has one.
	CreateDispute(ctx context.Context, d *model.Dispute) error
	AddNotification(ctx context.Context, n *model.Notification) error

	// UpdateTeamIf applies mutate only while the team's status is one of
	// from (any status when from is empty). It returns ErrConflict when the
	// status no longer matches and ErrNotFound for unknown ids. An error from
	// mutate aborts the update and is returned unchanged.
	UpdateTeamIf(ctx context.Context, id string, from []model.TeamStatus, mutate func(*model.Team) error) (model.Team, error)
	// UpdateMatchIf is the match equivalent of UpdateTeamIf.
	UpdateMatchIf(ctx context.Context, id string, from []model.MatchStatus, mutate func(*model.Match) error) (model.Match, error)
}

// Store is the persistence boundary of the service.
type Store interface {
	Reader

	// InTx runs fn in a transaction. Any error from fn rolls everything back.
	// Calling InTx again from inside fn is not supported.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// PendingNotifications returns undelivered outbox rows created at or
	// before the given time, oldest first.
	PendingNotifications(ctx context.Context, createdBefore time.Time, limit int) ([]model.Notification, error)
	// PendingNotificationsFor returns userID's undelivered rows, oldest first.
	PendingNotificationsFor(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
