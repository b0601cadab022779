// Package service implements the league core: matchmaking, the match
// lifecycle, result finalization and the time based sweeps.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/padel/internal/adapters/mq/queue"
	workerpool "github.com/okian/padel/internal/adapters/mq/worker"
	"github.com/okian/padel/internal/adapters/notify"
	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/dedupe"
	"github.com/okian/padel/internal/domain/matchmaking"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/internal/domain/scoring"
	"github.com/okian/padel/pkg/logger"
	"github.com/okian/padel/pkg/metrics"
)

const (
	defaultRecentOpponents = 2
	defaultSweepBatch      = 500
	defaultRedeliveryGrace = 30 * time.Second
	defaultQueueSize       = 10000
	defaultDedupeSize      = 50000
)

// Service implements the league operations used by the HTTP API and the
// scheduler.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	selector *matchmaking.Selector
	rules    *scoring.Rules
	sink     notify.Sink

	// Delivery, created by Start
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	started bool

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	recentOpponents int
	sweepBatch      int
	confirmWindow   time.Duration
	matchDeadline   time.Duration
	inactivityAfter time.Duration
	redeliveryGrace time.Duration

	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

// New constructs a Service. Without WithStore it keeps everything in memory.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		recentOpponents: defaultRecentOpponents,
		sweepBatch:      defaultSweepBatch,
		confirmWindow:   model.DefaultConfirmWindow,
		matchDeadline:   model.DefaultMatchDeadline,
		inactivityAfter: model.DefaultInactivityAfter,
		redeliveryGrace: defaultRedeliveryGrace,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemStore(repository.WithClock(s.now))
	}
	if s.rules == nil {
		s.rules = scoring.NewRules()
	}
	if s.sink == nil {
		s.sink = notify.NewHub(notify.WithLogger(s.logger.Named("notify")))
	}
	s.selector = matchmaking.NewSelector(matchmaking.WithClock(s.now))
	return s
}

// Store returns the underlying store.
func (s *Service) Store() repository.Store {
	return s.store
}

// Rules returns the point system in use.
func (s *Service) Rules() *scoring.Rules {
	return s.rules
}

// Start creates the notification queue and starts the delivery workers.
// Before Start, outbox rows are only persisted and wait for redelivery.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting league service...")

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	deduper := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.sink, s.store,
		workerpool.WithDeduper(deduper),
		workerpool.WithClock(s.now),
	)
	s.pool.Start(ctx)
	metrics.UpdateQueueCapacity(s.queue.Capacity())

	s.started = true
	s.logger.Info(ctx, "league service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the delivery workers. It does not close the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping league service...")

	var err error
	if s.pool != nil {
		err = s.pool.Shutdown(ctx)
	}
	s.started = false
	s.logger.Info(ctx, "league service stopped")
	return err
}

// Stats is a snapshot of the league and of the delivery pipeline.
type Stats struct {
	Started              bool           `json:"started"`
	TeamsByStatus        map[string]int `json:"teams_by_status"`
	MatchesByStatus      map[string]int `json:"matches_by_status"`
	OpenDisputes         int            `json:"open_disputes"`
	PendingNotifications int            `json:"pending_notifications"`
	QueueLength          int            `json:"queue_length"`
	QueueCapacity        int            `json:"queue_capacity"`
	Workers              int            `json:"workers"`
}

// GetStats returns service statistics and refreshes the status gauges.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, storeError("stats", "Stats", err)
	}

	out := Stats{
		TeamsByStatus:        make(map[string]int, len(model.TeamStatuses)),
		MatchesByStatus:      make(map[string]int, len(model.MatchStatuses)),
		OpenDisputes:         st.OpenDisputes,
		PendingNotifications: st.PendingNotifications,
	}
	for _, status := range model.TeamStatuses {
		n := st.TeamsByStatus[status]
		out.TeamsByStatus[string(status)] = n
		metrics.UpdateTeamsByStatus(string(status), n)
	}
	for _, status := range model.MatchStatuses {
		n := st.MatchesByStatus[status]
		out.MatchesByStatus[string(status)] = n
		metrics.UpdateMatchesByStatus(string(status), n)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out.Started = s.started
	if s.started {
		out.QueueLength = s.queue.Len(ctx)
		out.QueueCapacity = s.queue.Capacity()
		out.Workers = s.pool.Size()
	}
	return out, nil
}
