package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

// Sweep job names.
const (
	JobAutoConfirm  = "auto_confirm"
	JobCooldowns    = "cooldown_expiry"
	JobInactivity   = "inactivity"
	JobQueued       = "queued_retry"
	JobAvailability = "availability_return"
	JobRedelivery   = "notification_redelivery"
)

// SweepReport counts what one sweep run did.
type SweepReport struct {
	Job     string `json:"job"`
	Scanned int    `json:"scanned"`
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// errNotDue aborts a sweep item whose record no longer qualifies.
var errNotDue = errors.New("no longer due")

// skippable reports whether a failed item lost to a concurrent change or was
// simply not due, as opposed to an infrastructure failure.
func skippable(err error) bool {
	return errors.Is(err, errNotDue) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNoOpponent) ||
		errors.Is(err, repository.ErrConflict)
}

func (r *SweepReport) observe(ctx context.Context, l logger.Logger, id string, err error) {
	switch {
	case err == nil:
		r.Applied++
	case skippable(err):
		r.Skipped++
		l.Debug(ctx, "sweep item skipped", logger.String("job", r.Job), logger.String("id", id), logger.Error(err))
	default:
		r.Failed++
		l.Error(ctx, "sweep item failed", logger.String("job", r.Job), logger.String("id", id), logger.Error(err))
	}
}

func (s *Service) finishSweep(ctx context.Context, r *SweepReport) {
	metrics.RecordSweepItems(r.Job, "applied", r.Applied)
	metrics.RecordSweepItems(r.Job, "skipped", r.Skipped)
	metrics.RecordSweepItems(r.Job, "failed", r.Failed)
	if r.Scanned > 0 {
		s.logger.Info(ctx, "sweep finished",
			logger.String("job", r.Job),
			logger.Int("scanned", r.Scanned),
			logger.Int("applied", r.Applied),
			logger.Int("skipped", r.Skipped),
			logger.Int("failed", r.Failed),
		)
	}
}

// SweepAutoConfirm finalizes every match whose confirmation window has
// passed. Running it twice finalizes each match once.
func (s *Service) SweepAutoConfirm(ctx context.Context) (SweepReport, error) {
	r := SweepReport{Job: JobAutoConfirm}
	now := s.now()
	due, err := s.store.ListMatches(ctx, repository.MatchFilter{
		Statuses:       []model.MatchStatus{model.MatchAwaitingConfirmation},
		DeadlineBefore: &now,
		Limit:          s.sweepBatch,
	})
	if err != nil {
		return r, storeError(JobAutoConfirm, "Matches", err)
	}
	r.Scanned = len(due)
	for i := range due {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		_, err := s.FinalizeMatchResult(ctx, due[i].ID, true)
		r.observe(ctx, s.logger, due[i].ID, err)
	}
	s.finishSweep(ctx, &r)
	return r, nil
}

// SweepCooldowns returns teams whose cooldown has expired to AVAILABLE and
// runs matchmaking for the queued ones. A queued team keeps its flag until a
// match is found.
func (s *Service) SweepCooldowns(ctx context.Context) (SweepReport, error) {
	r := SweepReport{Job: JobCooldowns}
	now := s.now()
	due, err := s.store.ListTeams(ctx, repository.TeamFilter{
		Statuses:       []model.TeamStatus{model.TeamCooldown},
		CooldownBefore: &now,
		Limit:          s.sweepBatch,
	})
	if err != nil {
		return r, storeError(JobCooldowns, "Teams", err)
	}
	r.Scanned = len(due)

	var queued []model.Team
	for i := range due {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		team, err := s.releaseTeam(ctx, due[i].ID, model.TeamCooldown, func(t *model.Team) bool {
			return t.CooldownExpiresAt == nil || !t.CooldownExpiresAt.After(now)
		}, model.KindCooldownExpired, "Your cooldown is over, you can play again")
		r.observe(ctx, s.logger, due[i].ID, err)
		if err == nil && team.Queued {
			queued = append(queued, team)
		}
	}

	for i := range queued {
		if _, err := s.matchmake(ctx, JobCooldowns, &queued[i], queued[i].Mode == model.ModeFriendly, ""); err != nil {
			s.logger.Debug(ctx, "queued team not matched",
				logger.String("team_id", queued[i].ID),
				logger.String("reason", ReasonOf(err)),
			)
		}
	}
	s.finishSweep(ctx, &r)
	return r, nil
}

// SweepAvailability returns teams whose voluntary unavailability has ended.
func (s *Service) SweepAvailability(ctx context.Context) (SweepReport, error) {
	r := SweepReport{Job: JobAvailability}
	now := s.now()
	due, err := s.store.ListTeams(ctx, repository.TeamFilter{
		Statuses:          []model.TeamStatus{model.TeamUnavailable},
		UnavailableBefore: &now,
		Limit:             s.sweepBatch,
	})
	if err != nil {
		return r, storeError(JobAvailability, "Teams", err)
	}
	r.Scanned = len(due)
	for i := range due {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		_, err := s.releaseTeam(ctx, due[i].ID, model.TeamUnavailable, func(t *model.Team) bool {
			return t.UnavailableUntil != nil && !t.UnavailableUntil.After(now)
		}, "", "")
		r.observe(ctx, s.logger, due[i].ID, err)
	}
	s.finishSweep(ctx, &r)
	return r, nil
}

// releaseTeam moves a team from status to AVAILABLE while due still holds
// and optionally notifies its captain.
func (s *Service) releaseTeam(ctx context.Context, teamID string, status model.TeamStatus, due func(*model.Team) bool, kind model.NotificationKind, message string) (model.Team, error) {
	var out model.Team
	err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		var err error
		out, err = tx.UpdateTeamIf(ctx, teamID, []model.TeamStatus{status}, func(t *model.Team) error {
			if !due(t) {
				return errNotDue
			}
			t.SetStatus(model.TeamAvailable)
			return nil
		})
		if err != nil || kind == "" {
			return err
		}
		return ob.add(ctx, out.CaptainID, kind, "", out.ID, message)
	})
	return out, err
}

// SweepInactive marks teams that have not completed a match for the
// inactivity window as INACTIVE.
func (s *Service) SweepInactive(ctx context.Context) (SweepReport, error) {
	r := SweepReport{Job: JobInactivity}
	cutoff := s.now().Add(-s.inactivityAfter)
	statuses := []model.TeamStatus{model.TeamAvailable, model.TeamCooldown}
	due, err := s.store.ListTeams(ctx, repository.TeamFilter{
		Statuses:     statuses,
		ActiveBefore: &cutoff,
		Limit:        s.sweepBatch,
	})
	if err != nil {
		return r, storeError(JobInactivity, "Teams", err)
	}
	r.Scanned = len(due)
	days := int(s.inactivityAfter.Hours() / 24)
	for i := range due {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		err := s.inTx(ctx, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
			t, err := tx.UpdateTeamIf(ctx, due[i].ID, statuses, func(t *model.Team) error {
				if t.LastActivity().After(cutoff) {
					return errNotDue
				}
				t.SetStatus(model.TeamInactive)
				return nil
			})
			if err != nil {
				return err
			}
			return ob.add(ctx, t.CaptainID, model.KindTeamInactive, "", t.ID,
				fmt.Sprintf("%s has not played for %d days and is now inactive", t.Name, days))
		})
		r.observe(ctx, s.logger, due[i].ID, err)
	}
	s.finishSweep(ctx, &r)
	return r, nil
}

// SweepQueued retries matchmaking for every available queued team.
func (s *Service) SweepQueued(ctx context.Context) (SweepReport, error) {
	r := SweepReport{Job: JobQueued}
	queued := true
	teams, err := s.store.ListTeams(ctx, repository.TeamFilter{
		Statuses: []model.TeamStatus{model.TeamAvailable},
		Queued:   &queued,
		Limit:    s.sweepBatch,
	})
	if err != nil {
		return r, storeError(JobQueued, "Teams", err)
	}
	r.Scanned = len(teams)
	for i := range teams {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		// An earlier iteration may have claimed this team as an opponent.
		current, err := s.store.GetTeam(ctx, teams[i].ID)
		if err != nil {
			r.observe(ctx, s.logger, teams[i].ID, storeError(JobQueued, "Team", err))
			continue
		}
		if current.Status != model.TeamAvailable || !current.Queued {
			r.Skipped++
			continue
		}
		_, err = s.matchmake(ctx, JobQueued, &current, current.Mode == model.ModeFriendly, "")
		r.observe(ctx, s.logger, current.ID, err)
	}
	s.finishSweep(ctx, &r)
	return r, nil
}

// RedeliverNotifications queues outbox rows that are still undelivered after
// the grace period. Workers drop rows they have already delivered.
func (s *Service) RedeliverNotifications(ctx context.Context) (SweepReport, error) {
	r := SweepReport{Job: JobRedelivery}
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return r, nil
	}

	rows, err := s.store.PendingNotifications(ctx, s.now().Add(-s.redeliveryGrace), s.sweepBatch)
	if err != nil {
		return r, storeError(JobRedelivery, "Notifications", err)
	}
	r.Scanned = len(rows)
	r.Applied = s.dispatch(ctx, rows)
	r.Failed = r.Scanned - r.Applied
	s.finishSweep(ctx, &r)
	return r, nil
}

// DeliverPending queues userID's undelivered notifications. The server calls
// it when the user opens a push connection.
func (s *Service) DeliverPending(ctx context.Context, userID string) (int, error) {
	const op = "deliver_pending"
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started || userID == "" {
		return 0, nil
	}
	rows, err := s.store.PendingNotificationsFor(ctx, userID, s.sweepBatch)
	if err != nil {
		return 0, storeError(op, "Notifications", err)
	}
	n := s.dispatch(ctx, rows)
	if n > 0 {
		s.logger.Debug(ctx, "pending notifications queued",
			logger.String("user_id", userID),
			logger.Int("count", n),
		)
	}
	return n, nil
}
