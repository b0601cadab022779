package service

import (
	"time"

	"github.com/okian/padel/internal/adapters/notify"
	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/scoring"
	"github.com/okian/padel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithSink sets where notifications are pushed.
func WithSink(sink notify.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithRules sets the point system.
func WithRules(r *scoring.Rules) Option {
	return func(s *Service) {
		if r != nil {
			s.rules = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how record ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithWorkerCount sets the number of delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the notification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the delivery deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRecentOpponents sets how many past opponents a search avoids.
func WithRecentOpponents(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.recentOpponents = n
		}
	}
}

// WithSweepBatch caps how many records one sweep run scans.
func WithSweepBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepBatch = n
		}
	}
}

// WithConfirmationWindow sets how long the opponent has to confirm a result.
func WithConfirmationWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confirmWindow = d
		}
	}
}

// WithMatchDeadline sets how long a match has to be played.
func WithMatchDeadline(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.matchDeadline = d
		}
	}
}

// WithInactivityAfter sets the idle time after which a team becomes inactive.
func WithInactivityAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.inactivityAfter = d
		}
	}
}

// WithRedeliveryGrace sets how old an undelivered notification must be
// before it is queued again.
func WithRedeliveryGrace(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.redeliveryGrace = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
