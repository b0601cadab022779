// Package worker delivers queued notifications to the push sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/padel/internal/adapters/mq/queue"
	"github.com/okian/padel/internal/adapters/notify"
	"github.com/okian/padel/internal/domain/dedupe"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
	publishTimeout          = 5 * time.Second
)

// Publisher pushes an event to a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev model.Event) error
}

// Acknowledger marks an outbox row as delivered.
type Acknowledger interface {
	MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error
}

// Queue defines how workers receive notifications.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Item
}

// Worker processes notifications until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the current item.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	publisher Publisher
	acker     Acknowledger
	deduper   dedupe.Deduper
	name      string
	now       func() time.Time

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, pub Publisher, ack Acknowledger, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		publisher: pub,
		acker:     ack,
		name:      "worker",
		now:       time.Now,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.deduper == nil {
		w.deduper = dedupe.NewInMemoryDeduper()
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case it, ok := <-items:
			if !ok {
				return
			}
			if err := w.deliver(ctx, it); err != nil {
				w.logger.Warn(ctx, "notification delivery failed",
					logger.String("notification_id", it.ID),
					logger.String("kind", string(it.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// deliver publishes one notification and acknowledges it. A failure at
// either step forgets the id so the redelivery sweep can retry. A user
// with no live connection keeps the row pending until they reconnect.
func (w *InMemoryWorker) deliver(ctx context.Context, n queue.Item) error { //nolint:gocritic // hugeParam: value semantics through the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(time.Since(start).Seconds())
	}()

	if w.deduper.SeenAndRecord(ctx, n.ID) {
		metrics.RecordNotificationDuplicate()
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := w.publisher.Publish(pctx, n.UserID, n.Event()); err != nil {
		w.deduper.Unrecord(ctx, n.ID)
		if errors.Is(err, notify.ErrNoRecipient) {
			metrics.RecordNotificationFailed("offline")
			w.logger.Debug(ctx, "recipient offline; notification left pending",
				logger.String("notification_id", n.ID),
				logger.String("user_id", n.UserID),
			)
			return nil
		}
		metrics.RecordNotificationFailed("publish")
		metrics.RecordErrorByComponent("worker", "publish")
		return fmt.Errorf("publish %s: %w", n.ID, err)
	}
	metrics.RecordNotificationPublished()

	if err := w.acker.MarkNotificationDelivered(ctx, n.ID, w.now()); err != nil {
		w.deduper.Unrecord(ctx, n.ID)
		metrics.RecordNotificationFailed("ack")
		metrics.RecordErrorByComponent("worker", "ack")
		return fmt.Errorf("ack %s: %w", n.ID, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue and one deduper.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers. Zero or less picks a count from the
// number of CPUs. opts are applied to every worker.
func NewPool(workerCount int, q Queue, pub Publisher, ack Acknowledger, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	// Workers must share a deduper, so create one here unless given.
	shared := &InMemoryWorker{}
	for _, opt := range opts {
		opt(shared)
	}
	if shared.deduper == nil {
		opts = append(opts, WithDeduper(dedupe.NewInMemoryDeduper()))
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, pub, ack, wopts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Shutdown closes the queue and waits for every worker to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}
