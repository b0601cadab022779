package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/eligibility"
	"github.com/okian/padel/internal/domain/matchmaking"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

// FindRequest asks for an opponent for a team.
type FindRequest struct {
	TeamID   string `json:"team_id"`
	Friendly bool   `json:"friendly"`
	// ExperienceOverride searches another band than the team's own.
	ExperienceOverride string `json:"experience_override,omitempty"`
}

// FindOpponentAndCreateMatch picks the best opponent for the actor's team and
// claims both teams in one transaction. A search with no result returns an
// error of kind ErrNoOpponent; losing a race for a team returns ErrConflict.
func (s *Service) FindOpponentAndCreateMatch(ctx context.Context, actor model.Identity, req FindRequest) (model.Match, error) {
	const op = "find_match"
	if req.TeamID == "" {
		return model.Match{}, validationError(op, "Team id is required")
	}
	team, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return model.Match{}, storeError(op, "Team", err)
	}
	if team.CaptainID != actor.UserID {
		return model.Match{}, unauthorizedError(op, "Only the team captain can look for a match")
	}
	return s.matchmake(ctx, op, &team, req.Friendly, req.ExperienceOverride)
}

// matchmake runs one search for team and creates the match on success.
func (s *Service) matchmake(ctx context.Context, op string, team *model.Team, friendly bool, override string) (model.Match, error) {
	start := time.Now()
	defer func() {
		metrics.RecordMatchmakingDuration(time.Since(start).Seconds())
	}()

	disputed, err := s.store.DisputedTeamIDs(ctx)
	if err != nil {
		return model.Match{}, storeError(op, "Disputes", err)
	}
	res := eligibility.Check(team, disputed, eligibility.Options{Friendly: friendly, Now: s.now()})
	if !res.Eligible {
		return model.Match{}, invalidStateError(op, res.Reason)
	}

	candidates, err := s.store.ListTeams(ctx, repository.TeamFilter{
		ClubID:   team.ClubID,
		Statuses: model.AllowedStatuses(friendly),
	})
	if err != nil {
		return model.Match{}, storeError(op, "Teams", err)
	}
	recent, err := s.store.RecentOpponents(ctx, team.ID, s.recentOpponents)
	if err != nil {
		return model.Match{}, storeError(op, "Matches", err)
	}

	opponent, err := s.selector.Select(
		matchmaking.Request{Team: *team, Friendly: friendly, ExperienceOverride: override},
		matchmaking.Pool{Candidates: candidates, Disputed: disputed, RecentOpponents: recent},
	)
	if err != nil {
		var none *matchmaking.NoOpponentError
		if errors.As(err, &none) {
			metrics.RecordNoOpponent()
			return model.Match{}, &Error{Op: op, Kind: ErrNoOpponent, Reason: none.Reason, Err: err}
		}
		return model.Match{}, &Error{Op: op, Kind: ErrPersistence, Reason: genericReason, Err: err}
	}

	return s.CreateMatchWithLocking(ctx, team.ID, opponent.ID, model.ModeFor(friendly))
}

// CreateMatchWithLocking claims both teams and creates a PROPOSED match in
// one transaction. Each team is claimed only while its status still allows
// the mode and it still passes the eligibility check; otherwise nothing is
// written and an ErrConflict error is returned.
func (s *Service) CreateMatchWithLocking(ctx context.Context, teamAID, teamBID string, mode model.Mode) (model.Match, error) {
	const op = "create_match"
	if teamAID == "" || teamBID == "" {
		return model.Match{}, validationError(op, "Both teams are required")
	}
	if teamAID == teamBID {
		return model.Match{}, validationError(op, "A team cannot play against itself")
	}
	friendly := mode == model.ModeFriendly
	allowed := model.AllowedStatuses(friendly)

	var match model.Match
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		disputed, err := tx.DisputedTeamIDs(ctx)
		if err != nil {
			return err
		}
		now := s.now()

		claim := func(id, opponentID string) (model.Team, error) {
			return tx.UpdateTeamIf(ctx, id, allowed, func(t *model.Team) error {
				res := eligibility.Check(t, disputed, eligibility.Options{Friendly: friendly, Now: now})
				if !res.Eligible {
					return conflictError(op, fmt.Sprintf("%s is no longer available: %s", t.Name, res.Reason), repository.ErrConflict)
				}
				t.SetStatus(model.TeamInMatch)
				t.LastOpponentID = opponentID
				t.Queued = false
				return nil
			})
		}
		// Rows are locked in id order so two opposite claims on one pair
		// cannot wait on each other.
		firstID, secondID := teamAID, teamBID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := claim(firstID, secondID)
		if err != nil {
			return err
		}
		second, err := claim(secondID, firstID)
		if err != nil {
			return err
		}
		a, b := first, second
		if a.ID != teamAID {
			a, b = second, first
		}
		if a.ClubID != b.ClubID {
			return validationError(op, "Teams must belong to the same club")
		}

		match = model.Match{
			ID:        s.newID(),
			ClubID:    a.ClubID,
			TeamAID:   a.ID,
			TeamBID:   b.ID,
			Status:    model.MatchProposed,
			Mode:      mode,
			WeekCycle: model.WeekCycle(now),
			Deadline:  now.Add(s.matchDeadline),
			CreatedAt: now,
		}
		if err := tx.CreateMatch(ctx, &match); err != nil {
			return err
		}
		if err := ob.add(ctx, a.CaptainID, model.KindMatchCreated, match.ID, a.ID,
			fmt.Sprintf("New match proposed against %s", b.Name)); err != nil {
			return err
		}
		return ob.add(ctx, b.CaptainID, model.KindMatchCreated, match.ID, b.ID,
			fmt.Sprintf("%s challenged you to a match", a.Name))
	})
	if err != nil {
		err = storeError(op, "Team", err)
		if errors.Is(err, ErrConflict) {
			metrics.RecordMatchConflict()
			s.logger.Debug(ctx, "match creation lost a race",
				logger.String("team_a", teamAID),
				logger.String("team_b", teamBID),
				logger.Error(err),
			)
		}
		return model.Match{}, err
	}

	metrics.RecordMatchCreated(string(mode))
	s.logger.Info(ctx, "match created",
		logger.String("match_id", match.ID),
		logger.String("team_a", teamAID),
		logger.String("team_b", teamBID),
		logger.String("mode", string(mode)),
	)
	return match, nil
}
