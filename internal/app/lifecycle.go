package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/internal/domain/scoring"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

type side int

const (
	sideNone side = iota
	sideA
	sideB
)

// matchView is a match with both teams and the side the actor captains.
type matchView struct {
	match model.Match
	a, b  model.Team
	side  side
}

func (v *matchView) own() *model.Team {
	if v.side == sideB {
		return &v.b
	}
	return &v.a
}

func (v *matchView) opponent() *model.Team {
	if v.side == sideB {
		return &v.a
	}
	return &v.b
}

// loadMatch reads a match and both teams and checks that the actor
// captains one of them.
func loadMatch(ctx context.Context, tx repository.Reader, op, matchID string, actor model.Identity) (matchView, error) {
	var v matchView
	if matchID == "" {
		return v, validationError(op, "Match id is required")
	}
	m, err := tx.GetMatch(ctx, matchID)
	if err != nil {
		return v, storeError(op, "Match", err)
	}
	a, err := tx.GetTeam(ctx, m.TeamAID)
	if err != nil {
		return v, storeError(op, "Team", err)
	}
	b, err := tx.GetTeam(ctx, m.TeamBID)
	if err != nil {
		return v, storeError(op, "Team", err)
	}
	v = matchView{match: m, a: a, b: b}
	switch actor.UserID {
	case "":
	case a.CaptainID:
		v.side = sideA
	case b.CaptainID:
		v.side = sideB
	}
	if v.side == sideNone {
		return v, unauthorizedError(op, "Only the captains of this match can do that")
	}
	return v, nil
}

// transition moves the match out of one of from through a conditional
// update, so that concurrent actions on the same match serialise.
func transition(ctx context.Context, tx repository.Tx, op string, v *matchView, from []model.MatchStatus, mutate func(*model.Match)) (model.Match, error) {
	if !matchStatusIn(v.match.Status, from) {
		return model.Match{}, invalidStateError(op, "Match is "+describe(string(v.match.Status)))
	}
	return tx.UpdateMatchIf(ctx, v.match.ID, from, func(m *model.Match) error {
		mutate(m)
		return nil
	})
}

func matchStatusIn(s model.MatchStatus, set []model.MatchStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// describe turns a status constant into display text.
func describe(status string) string {
	return strings.ToLower(strings.ReplaceAll(status, "_", " "))
}

// AcceptMatch lets the invited captain (team B) accept a proposed match.
func (s *Service) AcceptMatch(ctx context.Context, actor model.Identity, matchID string) (model.Match, error) {
	const op = "accept_match"
	var out model.Match
	var from model.MatchStatus
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		v, err := loadMatch(ctx, tx, op, matchID, actor)
		if err != nil {
			return err
		}
		if v.side != sideB {
			return unauthorizedError(op, "Only the invited team's captain can accept the match")
		}
		from = v.match.Status
		out, err = transition(ctx, tx, op, &v, []model.MatchStatus{model.MatchProposed}, func(m *model.Match) {
			m.Status = model.MatchAccepted
		})
		if err != nil {
			return err
		}
		return ob.add(ctx, v.a.CaptainID, model.KindMatchAccepted, out.ID, v.a.ID,
			fmt.Sprintf("%s accepted your match", v.b.Name))
	})
	if err != nil {
		return model.Match{}, storeError(op, "Match", err)
	}
	s.transitioned(ctx, op, from, &out)
	return out, nil
}

// ScheduleMatch records that an accepted match has a date. at is optional
// and must not be in the past.
func (s *Service) ScheduleMatch(ctx context.Context, actor model.Identity, matchID string, at *time.Time) (model.Match, error) {
	const op = "schedule_match"
	now := s.now()
	if at != nil && at.Before(now) {
		return model.Match{}, validationError(op, "Scheduled time must be in the future")
	}

	var out model.Match
	var from model.MatchStatus
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		v, err := loadMatch(ctx, tx, op, matchID, actor)
		if err != nil {
			return err
		}
		from = v.match.Status
		out, err = transition(ctx, tx, op, &v, []model.MatchStatus{model.MatchAccepted}, func(m *model.Match) {
			m.Status = model.MatchScheduled
			if at != nil {
				when := at.UTC()
				m.ScheduledAt = &when
			}
		})
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("%s scheduled your match", v.own().Name)
		if out.ScheduledAt != nil {
			msg = fmt.Sprintf("%s scheduled your match for %s", v.own().Name, out.ScheduledAt.Format(time.RFC1123))
		}
		return ob.add(ctx, v.opponent().CaptainID, model.KindMatchScheduled, out.ID, v.opponent().ID, msg)
	})
	if err != nil {
		return model.Match{}, storeError(op, "Match", err)
	}
	s.transitioned(ctx, op, from, &out)
	return out, nil
}

// SubmitResult stores a result reported by either captain. The outcome is
// the submitter's own view and is stored from team A's perspective.
func (s *Service) SubmitResult(ctx context.Context, actor model.Identity, matchID string, outcome model.Outcome, score string) (model.Match, error) {
	const op = "submit_result"
	result, ok := model.ParseOutcome(string(outcome))
	if !ok {
		return model.Match{}, validationError(op, "Result must be WIN or LOSS")
	}

	var out model.Match
	var from model.MatchStatus
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		v, err := loadMatch(ctx, tx, op, matchID, actor)
		if err != nil {
			return err
		}
		resultForA := result
		if v.side == sideB {
			resultForA = result.Invert()
		}
		deadline := s.now().Add(s.confirmWindow)

		from = v.match.Status
		out, err = transition(ctx, tx, op, &v,
			[]model.MatchStatus{model.MatchProposed, model.MatchAccepted, model.MatchScheduled},
			func(m *model.Match) {
				m.RecordResult(resultForA, strings.TrimSpace(score), actor.UserID, deadline)
			})
		if err != nil {
			return err
		}
		return ob.add(ctx, v.opponent().CaptainID, model.KindResultSubmitted, out.ID, v.opponent().ID,
			fmt.Sprintf("%s submitted a result, confirm or dispute it within %d hours",
				v.own().Name, int(s.confirmWindow.Hours())))
	})
	if err != nil {
		return model.Match{}, storeError(op, "Match", err)
	}
	s.transitioned(ctx, op, from, &out)
	return out, nil
}

// ConfirmMatch lets the opposing captain accept a submitted result, which
// finalizes the match. The submitter can never confirm their own result.
func (s *Service) ConfirmMatch(ctx context.Context, actor model.Identity, matchID string) error {
	const op = "confirm_match"
	var (
		out model.Match
		res scoring.Outcome
	)
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		v, err := loadMatch(ctx, tx, op, matchID, actor)
		if err != nil {
			return err
		}
		if v.match.SubmittedBy != "" && v.match.SubmittedBy == actor.UserID {
			return newError(op, ErrSelfConfirm, "You cannot confirm a result you submitted")
		}
		out, res, err = s.finalize(ctx, tx, ob, op, &v.match, false)
		return err
	})
	if err != nil {
		return storeError(op, "Match", err)
	}
	s.finalized(ctx, &out, res)
	return nil
}

// DisputeMatch rejects a submitted result. Both teams stay out of
// matchmaking while the dispute is open.
func (s *Service) DisputeMatch(ctx context.Context, actor model.Identity, matchID, reason string) (model.Dispute, error) {
	const op = "dispute_match"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Dispute{}, validationError(op, "A reason is required to dispute a result")
	}

	var out model.Match
	var dispute model.Dispute
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		v, err := loadMatch(ctx, tx, op, matchID, actor)
		if err != nil {
			return err
		}
		out, err = transition(ctx, tx, op, &v, []model.MatchStatus{model.MatchAwaitingConfirmation}, func(m *model.Match) {
			m.Status = model.MatchDisputed
		})
		if err != nil {
			return err
		}
		dispute = model.Dispute{
			ID:        s.newID(),
			MatchID:   out.ID,
			ClubID:    out.ClubID,
			TeamAID:   out.TeamAID,
			TeamBID:   out.TeamBID,
			RaisedBy:  actor.UserID,
			Reason:    reason,
			Status:    model.DisputeOpen,
			CreatedAt: s.now(),
		}
		if err := tx.CreateDispute(ctx, &dispute); err != nil {
			return err
		}
		msg := fmt.Sprintf("%s disputed the result, an admin will review it", v.own().Name)
		if err := ob.add(ctx, v.a.CaptainID, model.KindMatchDisputed, out.ID, v.a.ID, msg); err != nil {
			return err
		}
		return ob.add(ctx, v.b.CaptainID, model.KindMatchDisputed, out.ID, v.b.ID, msg)
	})
	if err != nil {
		return model.Dispute{}, storeError(op, "Match", err)
	}
	s.transitioned(ctx, op, model.MatchAwaitingConfirmation, &out)
	return dispute, nil
}

func (s *Service) transitioned(ctx context.Context, op string, from model.MatchStatus, m *model.Match) {
	metrics.RecordTransition(string(from), string(m.Status))
	s.logger.Info(ctx, "match updated",
		logger.String("op", op),
		logger.String("match_id", m.ID),
		logger.String("from", string(from)),
		logger.String("to", string(m.Status)),
	)
}
