package gormstore

import (
	"time"

	"github.com/okian/padel/internal/domain/model"
)

type teamRecord struct {
	ID                   string     `gorm:"primaryKey;type:varchar(64)"`
	ClubID               string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_teams_club_name;index:idx_teams_club_status"`
	Name                 string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_teams_club_name"`
	CaptainID            string     `gorm:"type:varchar(64);not null"`
	PartnerID            string     `gorm:"type:varchar(64)"`
	Level                string     `gorm:"type:varchar(32)"`
	Mode                 string     `gorm:"type:varchar(16)"`
	Squad                string     `gorm:"type:varchar(8)"`
	Status               string     `gorm:"type:varchar(32);not null;index:idx_teams_club_status"`
	CooldownExpiresAt    *time.Time `gorm:"index"`
	UnavailableUntil     *time.Time
	LastOpponentID       string `gorm:"type:varchar(64)"`
	Queued               bool   `gorm:"not null;default:false"`
	Points               int    `gorm:"not null;default:0"`
	Wins                 int    `gorm:"not null;default:0"`
	Losses               int    `gorm:"not null;default:0"`
	MatchesPlayed        int    `gorm:"not null;default:0"`
	LastMatchCompletedAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (teamRecord) TableName() string { return "teams" }

func toTeamRecord(t *model.Team) teamRecord {
	return teamRecord{
		ID:                   t.ID,
		ClubID:               t.ClubID,
		Name:                 t.Name,
		CaptainID:            t.CaptainID,
		PartnerID:            t.PartnerID,
		Level:                t.Level.String(),
		Mode:                 string(t.Mode),
		Squad:                string(t.Squad),
		Status:               string(t.Status),
		CooldownExpiresAt:    t.CooldownExpiresAt,
		UnavailableUntil:     t.UnavailableUntil,
		LastOpponentID:       t.LastOpponentID,
		Queued:               t.Queued,
		Points:               t.Points,
		Wins:                 t.Wins,
		Losses:               t.Losses,
		MatchesPlayed:        t.MatchesPlayed,
		LastMatchCompletedAt: t.LastMatchCompletedAt,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func (r *teamRecord) toModel() model.Team {
	return model.Team{
		ID:                   r.ID,
		ClubID:               r.ClubID,
		Name:                 r.Name,
		CaptainID:            r.CaptainID,
		PartnerID:            r.PartnerID,
		Level:                model.ParseLevel(r.Level),
		Mode:                 model.Mode(r.Mode),
		Squad:                model.Squad(r.Squad),
		Status:               model.TeamStatus(r.Status),
		CooldownExpiresAt:    r.CooldownExpiresAt,
		UnavailableUntil:     r.UnavailableUntil,
		LastOpponentID:       r.LastOpponentID,
		Queued:               r.Queued,
		Points:               r.Points,
		Wins:                 r.Wins,
		Losses:               r.Losses,
		MatchesPlayed:        r.MatchesPlayed,
		LastMatchCompletedAt: r.LastMatchCompletedAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type matchRecord struct {
	ID                   string     `gorm:"primaryKey;type:varchar(64)"`
	ClubID               string     `gorm:"type:varchar(64);not null;index"`
	TeamAID              string     `gorm:"type:varchar(64);not null;index"`
	TeamBID              string     `gorm:"type:varchar(64);not null;index"`
	Status               string     `gorm:"type:varchar(32);not null;index:idx_matches_status_deadline"`
	Mode                 string     `gorm:"type:varchar(16);not null"`
	Result               string     `gorm:"type:varchar(8)"`
	Score                string     `gorm:"type:varchar(64)"`
	SubmittedBy          string     `gorm:"type:varchar(64)"`
	ConfirmationDeadline *time.Time `gorm:"index:idx_matches_status_deadline"`
	WeekCycle            int64
	Deadline             time.Time
	ScheduledAt          *time.Time
	CompletedAt          *time.Time
	AutoConfirmed        bool `gorm:"not null;default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (matchRecord) TableName() string { return "matches" }

func toMatchRecord(m *model.Match) matchRecord {
	return matchRecord{
		ID:                   m.ID,
		ClubID:               m.ClubID,
		TeamAID:              m.TeamAID,
		TeamBID:              m.TeamBID,
		Status:               string(m.Status),
		Mode:                 string(m.Mode),
		Result:               string(m.Result),
		Score:                m.Score,
		SubmittedBy:          m.SubmittedBy,
		ConfirmationDeadline: m.ConfirmationDeadline,
		WeekCycle:            m.WeekCycle,
		Deadline:             m.Deadline,
		ScheduledAt:          m.ScheduledAt,
		CompletedAt:          m.CompletedAt,
		AutoConfirmed:        m.AutoConfirmed,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func (r *matchRecord) toModel() model.Match {
	return model.Match{
		ID:                   r.ID,
		ClubID:               r.ClubID,
		TeamAID:              r.TeamAID,
		TeamBID:              r.TeamBID,
		Status:               model.MatchStatus(r.Status),
		Mode:                 model.Mode(r.Mode),
		Result:               model.Outcome(r.Result),
		Score:                r.Score,
		SubmittedBy:          r.SubmittedBy,
		ConfirmationDeadline: r.ConfirmationDeadline,
		WeekCycle:            r.WeekCycle,
		Deadline:             r.Deadline,
		ScheduledAt:          r.ScheduledAt,
		CompletedAt:          r.CompletedAt,
		AutoConfirmed:        r.AutoConfirmed,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type disputeRecord struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	MatchID   string `gorm:"type:varchar(64);not null;uniqueIndex"`
	ClubID    string `gorm:"type:varchar(64);not null"`
	TeamAID   string `gorm:"type:varchar(64);not null"`
	TeamBID   string `gorm:"type:varchar(64);not null"`
	RaisedBy  string `gorm:"type:varchar(64);not null"`
	Reason    string `gorm:"type:text;not null"`
	Status    string `gorm:"type:varchar(16);not null;index"`
	CreatedAt time.Time
}

func (disputeRecord) TableName() string { return "disputes" }

func toDisputeRecord(d *model.Dispute) disputeRecord {
	return disputeRecord{
		ID:        d.ID,
		MatchID:   d.MatchID,
		ClubID:    d.ClubID,
		TeamAID:   d.TeamAID,
		TeamBID:   d.TeamBID,
		RaisedBy:  d.RaisedBy,
		Reason:    d.Reason,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
	}
}

func (r *disputeRecord) toModel() model.Dispute {
	return model.Dispute{
		ID:        r.ID,
		MatchID:   r.MatchID,
		ClubID:    r.ClubID,
		TeamAID:   r.TeamAID,
		TeamBID:   r.TeamBID,
		RaisedBy:  r.RaisedBy,
		Reason:    r.Reason,
		Status:    model.DisputeStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

type notificationRecord struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)"`
	UserID      string     `gorm:"type:varchar(64);not null;index"`
	Kind        string     `gorm:"type:varchar(32);not null"`
	MatchID     string     `gorm:"type:varchar(64)"`
	TeamID      string     `gorm:"type:varchar(64)"`
	Message     string     `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"index:idx_notifications_pending"`
	DeliveredAt *time.Time `gorm:"index:idx_notifications_pending"`
}

func (notificationRecord) TableName() string { return "notifications" }

func toNotificationRecord(n *model.Notification) notificationRecord {
	return notificationRecord{
		ID:          n.ID,
		UserID:      n.UserID,
		Kind:        string(n.Kind),
		MatchID:     n.MatchID,
		TeamID:      n.TeamID,
		Message:     n.Message,
		CreatedAt:   n.CreatedAt,
		DeliveredAt: n.DeliveredAt,
	}
}

func (r *notificationRecord) toModel() model.Notification {
	return model.Notification{
		ID:          r.ID,
		UserID:      r.UserID,
		Kind:        model.NotificationKind(r.Kind),
		MatchID:     r.MatchID,
		TeamID:      r.TeamID,
		Message:     r.Message,
		CreatedAt:   r.CreatedAt,
		DeliveredAt: r.DeliveredAt,
	}
}

func allRecords() []any {
	return []any{&teamRecord{}, &matchRecord{}, &disputeRecord{}, &notificationRecord{}}
}
