package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/padel/internal/adapters/mq/queue"
	worker "github.com/okian/padel/internal/adapters/mq/worker"
	"github.com/okian/padel/internal/adapters/notify"
	"github.com/okian/padel/internal/domain/dedupe"
	"github.com/okian/padel/internal/domain/model"
	logging "github.com/okian/padel/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockPublisher struct {
	mu     sync.Mutex
	sent   map[string][]model.Event
	failOn map[string]error
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{sent: make(map[string][]model.Event), failOn: make(map[string]error)}
}

func (p *mockPublisher) Publish(_ context.Context, userID string, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failOn[ev.ID]; ok {
		return err
	}
	p.sent[userID] = append(p.sent[userID], ev)
	return nil
}

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, evs := range p.sent {
		n += len(evs)
	}
	return n
}

type mockAcker struct {
	mu    sync.Mutex
	acked map[string]time.Time
	err   error
}

func newMockAcker() *mockAcker { return &mockAcker{acked: make(map[string]time.Time)} }

func (a *mockAcker) MarkNotificationDelivered(_ context.Context, id string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.acked[id] = at
	return nil
}

func (a *mockAcker) isAcked(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.acked[id]
	return ok
}

func note(id, user string) model.Notification {
	return model.Notification{ID: id, UserID: user, Kind: model.KindMatchCreated, Message: "You have a new match"}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		pub := newMockPublisher()
		ack := newMockAcker()
		fixed := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
		w := worker.NewInMemoryWorker(q, pub, ack, worker.WithName("test"), worker.WithClock(func() time.Time { return fixed }))

		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		convey.Reset(cancel)

		convey.Convey("When a notification is queued", func() {
			convey.So(q.Enqueue(ctx, note("n1", "u1")), convey.ShouldBeNil)

			convey.Convey("Then it is published and acknowledged", func() {
				convey.So(waitFor(func() bool { return ack.isAcked("n1") }), convey.ShouldBeTrue)
				convey.So(pub.count(), convey.ShouldEqual, 1)
				convey.So(ack.acked["n1"], convey.ShouldEqual, fixed)
			})
		})

		convey.Convey("When the same notification is queued twice", func() {
			convey.So(q.Enqueue(ctx, note("n1", "u1")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, note("n1", "u1")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, note("n2", "u1")), convey.ShouldBeNil)

			convey.Convey("Then it is published once", func() {
				convey.So(waitFor(func() bool { return ack.isAcked("n2") }), convey.ShouldBeTrue)
				convey.So(pub.count(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When publishing fails", func() {
			pub.mu.Lock()
			pub.failOn["bad"] = errors.New("socket closed")
			pub.mu.Unlock()
			convey.So(q.Enqueue(ctx, note("bad", "u1")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, note("good", "u1")), convey.ShouldBeNil)

			convey.Convey("Then the row stays unacknowledged and can be retried", func() {
				convey.So(waitFor(func() bool { return ack.isAcked("good") }), convey.ShouldBeTrue)
				convey.So(ack.isAcked("bad"), convey.ShouldBeFalse)

				pub.mu.Lock()
				delete(pub.failOn, "bad")
				pub.mu.Unlock()
				convey.So(q.Enqueue(ctx, note("bad", "u1")), convey.ShouldBeNil)
				convey.So(waitFor(func() bool { return ack.isAcked("bad") }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the recipient is offline", func() {
			pub.mu.Lock()
			pub.failOn["away"] = fmt.Errorf("user u9: %w", notify.ErrNoRecipient)
			pub.mu.Unlock()
			convey.So(q.Enqueue(ctx, note("away", "u9")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, note("here", "u1")), convey.ShouldBeNil)

			convey.Convey("Then the row is not acknowledged until they are back", func() {
				convey.So(waitFor(func() bool { return ack.isAcked("here") }), convey.ShouldBeTrue)
				convey.So(ack.isAcked("away"), convey.ShouldBeFalse)

				pub.mu.Lock()
				delete(pub.failOn, "away")
				pub.mu.Unlock()
				convey.So(q.Enqueue(ctx, note("away", "u9")), convey.ShouldBeNil)
				convey.So(waitFor(func() bool { return ack.isAcked("away") }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it stops", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker whose acknowledgements fail", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		pub := newMockPublisher()
		ack := newMockAcker()
		ack.err = errors.New("db down")
		d := dedupe.NewInMemoryDeduper()
		w := worker.NewInMemoryWorker(q, pub, ack, worker.WithDeduper(d))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.So(q.Enqueue(ctx, note("n1", "u1")), convey.ShouldBeNil)

		convey.Convey("Then the id is forgotten for a later retry", func() {
			convey.So(waitFor(func() bool { return pub.count() == 1 }), convey.ShouldBeTrue)
			convey.So(waitFor(func() bool { return d.Size() == 0 }), convey.ShouldBeTrue)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		pub := newMockPublisher()
		ack := newMockAcker()

		convey.Convey("When created with a non-positive count", func() {
			p := worker.NewPool(0, q, pub, ack)
			convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When many notifications are queued", func() {
			p := worker.NewPool(4, q, pub, ack)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.Start(ctx)

			const total = 200
			for i := 0; i < total; i++ {
				convey.So(q.Enqueue(ctx, note(fmt.Sprintf("n%d", i), fmt.Sprintf("u%d", i%7))), convey.ShouldBeNil)
			}
			// Redelivered ids are skipped by the shared deduper.
			for i := 0; i < 20; i++ {
				_ = q.Enqueue(ctx, note(fmt.Sprintf("n%d", i), fmt.Sprintf("u%d", i%7)))
			}

			convey.Convey("Then each is delivered exactly once", func() {
				convey.So(waitFor(func() bool { return pub.count() >= total && q.Len(ctx) == 0 }), convey.ShouldBeTrue)
				time.Sleep(20 * time.Millisecond)
				convey.So(pub.count(), convey.ShouldEqual, total)
			})

			convey.Convey("Then shutdown drains and stops", func() {
				convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
