package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/padel/internal/scheduler"
	logging "github.com/okian/padel/pkg/logger"
)

func TestParseSpec(t *testing.T) {
	Convey("Cron specs are validated", t, func() {
		So(scheduler.ParseSpec("0 * * * *"), ShouldBeNil)
		So(scheduler.ParseSpec("@every 30s"), ShouldBeNil)
		So(scheduler.ParseSpec("@daily"), ShouldBeNil)
		So(errors.Is(scheduler.ParseSpec("every hour"), scheduler.ErrInvalidSpec), ShouldBeTrue)
		So(errors.Is(scheduler.ParseSpec("61 * * * *"), scheduler.ErrInvalidSpec), ShouldBeTrue)
	})
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		_ = logging.Init()
		s := scheduler.New(scheduler.WithJobTimeout(time.Second))
		Reset(func() { _ = s.Stop(context.Background()) })

		Convey("When registering jobs", func() {
			noop := func(context.Context) error { return nil }
			So(s.Register("b", "@hourly", noop), ShouldBeNil)
			So(s.Register("a", "0 3 * * *", noop), ShouldBeNil)

			Convey("Then names are listed in order", func() {
				So(s.Jobs(), ShouldResemble, []string{"a", "b"})
			})

			Convey("Then duplicates and bad input are rejected", func() {
				So(errors.Is(s.Register("a", "@hourly", noop), scheduler.ErrDuplicateJob), ShouldBeTrue)
				So(errors.Is(s.Register("c", "nonsense", noop), scheduler.ErrInvalidSpec), ShouldBeTrue)
				So(s.Register("", "@hourly", noop), ShouldEqual, scheduler.ErrInvalidJob)
				So(s.Register("d", "@hourly", nil), ShouldEqual, scheduler.ErrInvalidJob)
			})
		})

		Convey("When running a job manually", func() {
			var calls int32
			So(s.Register("sweep", "@hourly", func(context.Context) error {
				atomic.AddInt32(&calls, 1)
				return nil
			}), ShouldBeNil)

			So(s.RunNow(context.Background(), "sweep"), ShouldBeNil)
			So(atomic.LoadInt32(&calls), ShouldEqual, 1)

			Convey("Then unknown jobs are reported", func() {
				So(errors.Is(s.RunNow(context.Background(), "missing"), scheduler.ErrUnknownJob), ShouldBeTrue)
			})
		})

		Convey("When a job fails", func() {
			boom := errors.New("boom")
			So(s.Register("bad", "@hourly", func(context.Context) error { return boom }), ShouldBeNil)

			Convey("Then RunNow returns its error", func() {
				So(s.RunNow(context.Background(), "bad"), ShouldEqual, boom)
			})
		})

		Convey("When RunNow is called while the job is running", func() {
			var calls int32
			release := make(chan struct{})
			started := make(chan struct{}, 1)
			So(s.Register("slow", "@hourly", func(context.Context) error {
				atomic.AddInt32(&calls, 1)
				started <- struct{}{}
				<-release
				return nil
			}), ShouldBeNil)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.RunNow(context.Background(), "slow")
			}()
			<-started

			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.RunNow(context.Background(), "slow")
			}()
			time.Sleep(50 * time.Millisecond)
			close(release)
			wg.Wait()

			Convey("Then both callers share one run", func() {
				So(atomic.LoadInt32(&calls), ShouldEqual, 1)
			})
		})

		Convey("When the caller that started a run gives up", func() {
			var calls int32
			release := make(chan struct{})
			started := make(chan struct{}, 1)
			So(s.Register("long", "@hourly", func(ctx context.Context) error {
				atomic.AddInt32(&calls, 1)
				started <- struct{}{}
				select {
				case <-release:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}), ShouldBeNil)

			first, cancelFirst := context.WithCancel(context.Background())
			firstErr := make(chan error, 1)
			go func() { firstErr <- s.RunNow(first, "long") }()
			<-started

			secondErr := make(chan error, 1)
			go func() { secondErr <- s.RunNow(context.Background(), "long") }()
			time.Sleep(50 * time.Millisecond)

			cancelFirst()
			gaveUp := <-firstErr
			close(release)

			Convey("Then only that caller stops waiting", func() {
				So(gaveUp, ShouldEqual, context.Canceled)
				So(<-secondErr, ShouldBeNil)
				So(atomic.LoadInt32(&calls), ShouldEqual, 1)
			})
		})

		Convey("When started with a frequent job", func() {
			var calls int32
			So(s.Register("tick", "@every 1s", func(context.Context) error {
				atomic.AddInt32(&calls, 1)
				return nil
			}), ShouldBeNil)
			s.Start()

			Convey("Then the job fires and the next run is known", func() {
				So(s.Next("tick").IsZero(), ShouldBeFalse)
				deadline := time.Now().Add(3 * time.Second)
				for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
					time.Sleep(20 * time.Millisecond)
				}
				So(atomic.LoadInt32(&calls), ShouldBeGreaterThan, 0)
				So(s.Stop(context.Background()), ShouldBeNil)
			})
		})
	})
}
