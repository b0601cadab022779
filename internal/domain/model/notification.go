package model

import "time"

// NotificationKind names an outbound event.
type NotificationKind string

const (
	KindMatchCreated        NotificationKind = "match_created"
	KindMatchAccepted       NotificationKind = "match_accepted"
	KindMatchScheduled      NotificationKind = "match_scheduled"
	KindResultSubmitted     NotificationKind = "result_submitted"
	KindResultConfirmed     NotificationKind = "result_confirmed"
	KindResultAutoConfirmed NotificationKind = "result_auto_confirmed"
	KindMatchDisputed       NotificationKind = "match_disputed"
	KindCooldownExpired     NotificationKind = "cooldown_expired"
	KindTeamInactive        NotificationKind = "team_inactive"
)

// Notification is an outbox row. It is written in the same transaction as the
// state change it reports and delivered after commit.
type Notification struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Kind        NotificationKind `json:"kind"`
	MatchID     string           `json:"match_id,omitempty"`
	TeamID      string           `json:"team_id,omitempty"`
	Message     string           `json:"message"`
	CreatedAt   time.Time        `json:"created_at"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
}

// Event is what a push sink sends to a connected user.
type Event struct {
	ID      string           `json:"id"`
	Kind    NotificationKind `json:"kind"`
	MatchID string           `json:"match_id,omitempty"`
	TeamID  string           `json:"team_id,omitempty"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Event converts the outbox row into its wire form.
func (n *Notification) Event() Event {
	return Event{
		ID:      n.ID,
		Kind:    n.Kind,
		MatchID: n.MatchID,
		TeamID:  n.TeamID,
		Message: n.Message,
		At:      n.CreatedAt,
	}
}

// Role is the authorization role of an identity.
type Role string

const (
	RolePlayer Role = "PLAYER"
	RoleAdmin  Role = "ADMIN"
)

// Identity is an already-authenticated caller.
type Identity struct {
	UserID string `json:"user_id"`
	ClubID string `json:"club_id"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
