package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/padel/internal/adapters/notify"
	"github.com/okian/padel/internal/adapters/repository"
	service "github.com/okian/padel/internal/app"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const club = "club-1"

var epoch = time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: epoch} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clk   *clock
	store *repository.MemStore
	svc   *service.Service
	ctx   context.Context
}

func newHarness(opts ...service.Option) *harness {
	clk := newClock()
	st := repository.NewMemStore(repository.WithClock(clk.Now))
	var seq int64
	base := []service.Option{
		service.WithStore(st),
		service.WithClock(clk.Now),
		service.WithIDGenerator(func() string {
			return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1))
		}),
		service.WithWorkerCount(2),
	}
	return &harness{
		clk:   clk,
		store: st,
		svc:   service.New(append(base, opts...)...),
		ctx:   context.Background(),
	}
}

type teamOpt func(*model.Team)

func withPoints(p int) teamOpt       { return func(t *model.Team) { t.Points = p } }
func withLevel(l model.Level) teamOpt { return func(t *model.Team) { t.Level = l } }
func withClub(c string) teamOpt      { return func(t *model.Team) { t.ClubID = c } }
func withQueued() teamOpt            { return func(t *model.Team) { t.Queued = true } }
func withMode(m model.Mode) teamOpt  { return func(t *model.Team) { t.Mode = m } }
func withNoPartner() teamOpt         { return func(t *model.Team) { t.PartnerID = "" } }

func withStatus(s model.TeamStatus) teamOpt {
	return func(t *model.Team) { t.Status = s }
}

func withCooldownUntil(until time.Time) teamOpt {
	return func(t *model.Team) { t.EnterCooldown(until) }
}

func withCreatedAt(at time.Time) teamOpt {
	return func(t *model.Team) { t.CreatedAt = at }
}

// addTeam stores a competitive intermediate doubles team named name, with
// captain "cap-<name>".
func (h *harness) addTeam(name string, opts ...teamOpt) model.Team {
	t := model.Team{
		ID:        "team-" + name,
		ClubID:    club,
		Name:      name,
		CaptainID: "cap-" + name,
		PartnerID: "mate-" + name,
		Level:     model.LevelIntermediate,
		Mode:      model.ModeCompetitive,
		Squad:     model.SquadDoubles,
		Status:    model.TeamAvailable,
		CreatedAt: h.clk.Now(),
	}
	for _, opt := range opts {
		opt(&t)
	}
	err := h.store.InTx(h.ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateTeam(ctx, &t)
	})
	So(err, ShouldBeNil)
	return t
}

func (h *harness) team(id string) model.Team {
	t, err := h.store.GetTeam(h.ctx, id)
	So(err, ShouldBeNil)
	return t
}

func (h *harness) match(id string) model.Match {
	m, err := h.store.GetMatch(h.ctx, id)
	So(err, ShouldBeNil)
	return m
}

func captain(t model.Team) model.Identity {
	return model.Identity{UserID: t.CaptainID, ClubID: t.ClubID, Role: model.RolePlayer}
}

func admin() model.Identity {
	return model.Identity{UserID: "admin-1", ClubID: club, Role: model.RoleAdmin}
}

// matchBetween creates a match for a and b and returns it.
func (h *harness) matchBetween(a, b model.Team, mode model.Mode) model.Match {
	m, err := h.svc.CreateMatchWithLocking(h.ctx, a.ID, b.ID, mode)
	So(err, ShouldBeNil)
	return m
}

// submitted creates a match and records a result submitted by team A's
// captain.
func (h *harness) submitted(a, b model.Team, mode model.Mode, outcome model.Outcome) model.Match {
	m := h.matchBetween(a, b, mode)
	m, err := h.svc.SubmitResult(h.ctx, captain(a), m.ID, outcome, "6-4 6-3")
	So(err, ShouldBeNil)
	return m
}

type recordingSink struct {
	mu      sync.Mutex
	events  map[string][]model.Event
	fail    bool
	offline map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(map[string][]model.Event), offline: make(map[string]bool)}
}

func (r *recordingSink) Publish(_ context.Context, userID string, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("sink down")
	}
	if r.offline[userID] {
		return fmt.Errorf("user %s: %w", userID, notify.ErrNoRecipient)
	}
	r.events[userID] = append(r.events[userID], ev)
	return nil
}

func (r *recordingSink) kinds(userID string) []model.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(r.events[userID]))
	for _, ev := range r.events[userID] {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recordingSink) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evs := range r.events {
		n += len(evs)
	}
	return n
}

func (r *recordingSink) setOffline(userID string, v bool) {
	r.mu.Lock()
	r.offline[userID] = v
	r.mu.Unlock()
}

func (r *recordingSink) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
