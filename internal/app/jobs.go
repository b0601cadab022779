package service

import (
	"context"
	"fmt"

	"github.com/okian/padel/internal/scheduler"
)

// Schedules holds one cron spec per sweep. An empty spec disables the job.
type Schedules struct {
	AutoConfirm  string
	QueuedRetry  string
	Cooldown     string
	Inactivity   string
	Availability string
	Redelivery   string
}

// DefaultSchedules runs auto-confirmation and queued retries hourly, the
// team sweeps daily and outbox redelivery every 30 seconds.
func DefaultSchedules() Schedules {
	return Schedules{
		AutoConfirm:  "0 * * * *",
		QueuedRetry:  "30 * * * *",
		Cooldown:     "0 3 * * *",
		Inactivity:   "30 3 * * *",
		Availability: "0 4 * * *",
		Redelivery:   "@every 30s",
	}
}

// Registrar is the part of the scheduler the service needs.
type Registrar interface {
	Register(name, spec string, fn scheduler.JobFunc) error
}

// RegisterSweeps registers every sweep with its schedule.
func (s *Service) RegisterSweeps(r Registrar, sc Schedules) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (SweepReport, error)
	}{
		{JobAutoConfirm, sc.AutoConfirm, s.SweepAutoConfirm},
		{JobQueued, sc.QueuedRetry, s.SweepQueued},
		{JobCooldowns, sc.Cooldown, s.SweepCooldowns},
		{JobInactivity, sc.Inactivity, s.SweepInactive},
		{JobAvailability, sc.Availability, s.SweepAvailability},
		{JobRedelivery, sc.Redelivery, s.RedeliverNotifications},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		run := j.run
		if err := r.Register(j.name, j.spec, func(ctx context.Context) error {
			_, err := run(ctx)
			return err
		}); err != nil {
			return fmt.Errorf("register %s: %w", j.name, err)
		}
	}
	return nil
}
