package service

import (
	"context"
	"fmt"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/internal/domain/scoring"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

// FinalizeMatchResult completes a match awaiting confirmation and applies the
// point system to both teams in one transaction. auto marks a completion by
// the confirmation deadline rather than by the opposing captain.
func (s *Service) FinalizeMatchResult(ctx context.Context, matchID string, auto bool) (model.Match, error) {
	const op = "finalize_match"
	var (
		out model.Match
		res scoring.Outcome
	)
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return storeError(op, "Match", err)
		}
		out, res, err = s.finalize(ctx, tx, ob, op, &m, auto)
		return err
	})
	if err != nil {
		return model.Match{}, storeError(op, "Match", err)
	}
	s.finalized(ctx, &out, res)
	return out, nil
}

func (s *Service) finalize(ctx context.Context, tx repository.Tx, ob *outbox, op string, m *model.Match, auto bool) (model.Match, scoring.Outcome, error) {
	if m.Status != model.MatchAwaitingConfirmation {
		return model.Match{}, scoring.Outcome{}, invalidStateError(op, "Match is "+describe(string(m.Status)))
	}
	if m.Result == "" {
		return model.Match{}, scoring.Outcome{}, invalidStateError(op, "Match has no result")
	}
	now := s.now()

	// The match goes first so a second finalization conflicts before any
	// team is touched.
	done, err := tx.UpdateMatchIf(ctx, m.ID, []model.MatchStatus{model.MatchAwaitingConfirmation}, func(cur *model.Match) error {
		completed := now
		cur.Status = model.MatchCompleted
		cur.CompletedAt = &completed
		cur.AutoConfirmed = auto
		return nil
	})
	if err != nil {
		return model.Match{}, scoring.Outcome{}, err
	}

	winnerID, loserID := done.WinnerLoser()
	inMatch := []model.TeamStatus{model.TeamInMatch}
	var (
		loser model.Team
		res   scoring.Outcome
	)
	// Both rows are held while the rules run.
	winner, err := tx.UpdateTeamIf(ctx, winnerID, inMatch, func(w *model.Team) error {
		var err error
		loser, err = tx.UpdateTeamIf(ctx, loserID, inMatch, func(l *model.Team) error {
			res = s.rules.Apply(done.Mode, w, l, now)
			return nil
		})
		return err
	})
	if err != nil {
		return model.Match{}, scoring.Outcome{}, err
	}

	kind := model.KindResultConfirmed
	verb := "confirmed"
	if auto {
		kind = model.KindResultAutoConfirmed
		verb = "confirmed automatically"
	}
	if err := ob.add(ctx, winner.CaptainID, kind, done.ID, winner.ID,
		fmt.Sprintf("Result %s: you won against %s", verb, loser.Name)); err != nil {
		return model.Match{}, scoring.Outcome{}, err
	}
	if err := ob.add(ctx, loser.CaptainID, kind, done.ID, loser.ID,
		fmt.Sprintf("Result %s: you lost against %s", verb, winner.Name)); err != nil {
		return model.Match{}, scoring.Outcome{}, err
	}
	return done, res, nil
}

func (s *Service) finalized(ctx context.Context, m *model.Match, res scoring.Outcome) {
	metrics.RecordFinalization(string(m.Mode), m.AutoConfirmed)
	metrics.RecordTransition(string(model.MatchAwaitingConfirmation), string(m.Status))
	fields := []logger.Field{
		logger.String("match_id", m.ID),
		logger.String("mode", string(m.Mode)),
		logger.String("winner", res.WinnerID),
		logger.String("loser", res.LoserID),
		logger.Bool("auto", m.AutoConfirmed),
		logger.Int("points_awarded", res.PointsAwarded),
	}
	if res.CooldownUntil != nil {
		fields = append(fields, logger.Time("cooldown_until", *res.CooldownUntil))
	}
	s.logger.Info(ctx, "match completed", fields...)
}
