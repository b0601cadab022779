package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
)

const defaultHistoryLimit = 20

// resettable lists the statuses an admin may put back to AVAILABLE.
// IN_MATCH is only accepted when the team has no open match.
var resettable = []model.TeamStatus{
	model.TeamInMatch,
	model.TeamCooldown,
	model.TeamUnavailable,
	model.TeamInactive,
}

func canView(actor model.Identity, clubID string) bool {
	return actor.ClubID == clubID || (actor.IsAdmin() && actor.ClubID == "")
}

// GetTeam returns a team of the actor's club.
func (s *Service) GetTeam(ctx context.Context, actor model.Identity, teamID string) (model.Team, error) {
	const op = "get_team"
	t, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return model.Team{}, storeError(op, "Team", err)
	}
	if !canView(actor, t.ClubID) {
		return model.Team{}, unauthorizedError(op, "Team belongs to another club")
	}
	return t, nil
}

// GetMatch returns a match of the actor's club.
func (s *Service) GetMatch(ctx context.Context, actor model.Identity, matchID string) (model.Match, error) {
	const op = "get_match"
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return model.Match{}, storeError(op, "Match", err)
	}
	if !canView(actor, m.ClubID) {
		return model.Match{}, unauthorizedError(op, "Match belongs to another club")
	}
	return m, nil
}

// ListTeamMatches returns a team's matches, newest first.
func (s *Service) ListTeamMatches(ctx context.Context, actor model.Identity, teamID string, limit int) ([]model.Match, error) {
	const op = "list_team_matches"
	t, err := s.GetTeam(ctx, actor, teamID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	out, err := s.store.ListMatches(ctx, repository.MatchFilter{TeamID: t.ID, Limit: limit})
	if err != nil {
		return nil, storeError(op, "Matches", err)
	}
	return out, nil
}

// SetQueued flags the team for automatic matchmaking by the sweeps. The flag
// is cleared when a match is created for the team.
func (s *Service) SetQueued(ctx context.Context, actor model.Identity, teamID string, queued bool) (model.Team, error) {
	const op = "set_queued"
	var out model.Team
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, _ *outbox) error {
		var err error
		out, err = tx.UpdateTeamIf(ctx, teamID, nil, func(t *model.Team) error {
			if t.CaptainID != actor.UserID {
				return unauthorizedError(op, "Only the team captain can change the queue")
			}
			if queued && t.Status == model.TeamInactive {
				return invalidStateError(op, "Team is inactive")
			}
			t.Queued = queued
			return nil
		})
		return err
	})
	if err != nil {
		return model.Team{}, storeError(op, "Team", err)
	}
	s.logger.Info(ctx, "team queue updated", logger.String("team_id", out.ID), logger.Bool("queued", queued))
	return out, nil
}

// SetAvailability lets a captain take an available team out of matchmaking,
// optionally until a return date, and bring it back.
func (s *Service) SetAvailability(ctx context.Context, actor model.Identity, teamID string, available bool, until *time.Time) (model.Team, error) {
	const op = "set_availability"
	now := s.now()
	if !available && until != nil && !until.After(now) {
		return model.Team{}, validationError(op, "Return date must be in the future")
	}

	from := []model.TeamStatus{model.TeamAvailable}
	if available {
		from = []model.TeamStatus{model.TeamUnavailable}
	}

	var out model.Team
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, _ *outbox) error {
		current, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if current.CaptainID != actor.UserID {
			return unauthorizedError(op, "Only the team captain can change availability")
		}
		if !model.StatusIn(current.Status, from) {
			return invalidStateError(op, "Team is "+describe(string(current.Status)))
		}
		out, err = tx.UpdateTeamIf(ctx, teamID, from, func(t *model.Team) error {
			if available {
				t.SetStatus(model.TeamAvailable)
				return nil
			}
			t.SetStatus(model.TeamUnavailable)
			if until != nil {
				back := until.UTC()
				t.UnavailableUntil = &back
			}
			return nil
		})
		return err
	})
	if err != nil {
		return model.Team{}, storeError(op, "Team", err)
	}
	s.logger.Info(ctx, "team availability updated",
		logger.String("team_id", out.ID),
		logger.String("status", string(out.Status)),
	)
	return out, nil
}

// ResetTeam is the admin escape hatch that puts a team back to AVAILABLE.
func (s *Service) ResetTeam(ctx context.Context, admin model.Identity, teamID string) (model.Team, error) {
	const op = "reset_team"
	if !admin.IsAdmin() {
		return model.Team{}, unauthorizedError(op, "Only an admin can reset a team")
	}

	var out model.Team
	var from model.TeamStatus
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, _ *outbox) error {
		current, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if !canView(admin, current.ClubID) {
			return unauthorizedError(op, "Team belongs to another club")
		}
		if !model.StatusIn(current.Status, resettable) {
			return invalidStateError(op, "Team is "+describe(string(current.Status)))
		}
		if current.Status == model.TeamInMatch {
			open, err := tx.ListMatches(ctx, repository.MatchFilter{
				TeamID: current.ID,
				Statuses: []model.MatchStatus{
					model.MatchProposed, model.MatchAccepted, model.MatchScheduled, model.MatchAwaitingConfirmation,
				},
				Limit: 1,
			})
			if err != nil {
				return err
			}
			if len(open) > 0 {
				return invalidStateError(op, fmt.Sprintf("Team has an open match (%s)", open[0].ID))
			}
		}
		from = current.Status
		out, err = tx.UpdateTeamIf(ctx, teamID, []model.TeamStatus{current.Status}, func(t *model.Team) error {
			t.SetStatus(model.TeamAvailable)
			return nil
		})
		return err
	})
	if err != nil {
		return model.Team{}, storeError(op, "Team", err)
	}
	s.logger.Info(ctx, "team reset",
		logger.String("team_id", out.ID),
		logger.String("from", string(from)),
		logger.String("admin", admin.UserID),
	)
	return out, nil
}
