package service

import (
	"context"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

// outbox collects the notifications written by one transaction.
type outbox struct {
	svc  *Service
	tx   repository.Tx
	rows []model.Notification
}

// add writes a notification row in the current transaction. Rows without a
// recipient are dropped.
func (o *outbox) add(ctx context.Context, userID string, kind model.NotificationKind, matchID, teamID, message string) error {
	if userID == "" {
		return nil
	}
	n := model.Notification{
		ID:        o.svc.newID(),
		UserID:    userID,
		Kind:      kind,
		MatchID:   matchID,
		TeamID:    teamID,
		Message:   message,
		CreatedAt: o.svc.now(),
	}
	if err := o.tx.AddNotification(ctx, &n); err != nil {
		return err
	}
	o.rows = append(o.rows, n)
	return nil
}

// inTx runs fn in a store transaction and queues its notifications once the
// transaction has committed.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx, ob *outbox) error) error {
	var ob *outbox
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ob = &outbox{svc: s, tx: tx}
		return fn(ctx, tx, ob)
	})
	if err != nil {
		return err
	}
	// The request may be gone by now; the rows are committed either way.
	s.dispatch(context.WithoutCancel(ctx), ob.rows)
	return nil
}

// dispatch hands committed rows to the delivery queue. Rows that cannot be
// queued stay pending in the store for the redelivery sweep.
func (s *Service) dispatch(ctx context.Context, rows []model.Notification) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || len(rows) == 0 {
		return 0
	}

	queued := 0
	for i := range rows {
		if err := s.queue.Enqueue(ctx, rows[i]); err != nil {
			s.logger.Warn(ctx, "notification left for redelivery",
				logger.String("notification_id", rows[i].ID),
				logger.Error(err),
			)
			continue
		}
		metrics.RecordNotificationEnqueued()
		queued++
	}
	return queued
}
