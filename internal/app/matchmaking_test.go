package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/padel/internal/adapters/repository"
	service "github.com/okian/padel/internal/app"
	"github.com/okian/padel/internal/domain/model"
)

func TestFindOpponentAndCreateMatch(t *testing.T) {
	Convey("Given a club with teams at different points", t, func() {
		h := newHarness()
		me := h.addTeam("me", withPoints(45))
		h.addTeam("far", withPoints(10))
		h.addTeam("high", withPoints(50))
		near := h.addTeam("near", withPoints(48))

		Convey("When the captain looks for a competitive match", func() {
			m, err := h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{TeamID: me.ID})
			So(err, ShouldBeNil)

			Convey("Then the closest team is picked and a proposed match created", func() {
				So(m.TeamAID, ShouldEqual, me.ID)
				So(m.TeamBID, ShouldEqual, near.ID)
				So(m.Status, ShouldEqual, model.MatchProposed)
				So(m.Mode, ShouldEqual, model.ModeCompetitive)
				So(m.ClubID, ShouldEqual, club)
				So(m.Deadline, ShouldEqual, epoch.Add(7*24*time.Hour))
				So(m.WeekCycle, ShouldEqual, model.WeekCycle(epoch))
			})

			Convey("Then both teams are in the match and point at each other", func() {
				a, b := h.team(me.ID), h.team(near.ID)
				So(a.Status, ShouldEqual, model.TeamInMatch)
				So(b.Status, ShouldEqual, model.TeamInMatch)
				So(a.LastOpponentID, ShouldEqual, near.ID)
				So(b.LastOpponentID, ShouldEqual, me.ID)
			})

			Convey("Then a second search for the same team is refused", func() {
				_, err := h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{TeamID: me.ID})
				So(errors.Is(err, service.ErrInvalidState), ShouldBeTrue)
				So(service.ReasonOf(err), ShouldEqual, "Team is already in a match")
			})
		})

		Convey("When someone other than the captain searches", func() {
			_, err := h.svc.FindOpponentAndCreateMatch(h.ctx,
				model.Identity{UserID: me.PartnerID, ClubID: club}, service.FindRequest{TeamID: me.ID})

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrUnauthorized), ShouldBeTrue)
				So(h.team(me.ID).Status, ShouldEqual, model.TeamAvailable)
			})
		})

		Convey("When the team id is missing or unknown", func() {
			_, err := h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{})
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)

			_, err = h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{TeamID: "nope"})
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			So(service.ReasonOf(err), ShouldEqual, "Team not found")
		})
	})

	Convey("Given a team in cooldown", t, func() {
		h := newHarness()
		me := h.addTeam("me", withCooldownUntil(epoch.Add(60*time.Hour)))
		h.addTeam("other")

		Convey("When it looks for a competitive match", func() {
			_, err := h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{TeamID: me.ID})

			Convey("Then the reason tells how long is left", func() {
				So(errors.Is(err, service.ErrInvalidState), ShouldBeTrue)
				So(service.ReasonOf(err), ShouldEqual, "In cooldown for 3 more days")
			})
		})

		Convey("When it looks for a friendly match", func() {
			m, err := h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{TeamID: me.ID, Friendly: true})

			Convey("Then the match is created and the cooldown cleared", func() {
				So(err, ShouldBeNil)
				So(m.Mode, ShouldEqual, model.ModeFriendly)
				claimed := h.team(me.ID)
				So(claimed.Status, ShouldEqual, model.TeamInMatch)
				So(claimed.CooldownExpiresAt, ShouldBeNil)
			})
		})
	})

	Convey("Given a beginner team whose only compatible opponent is very competitive", t, func() {
		h := newHarness()
		me := h.addTeam("me", withLevel(model.LevelBeginner))
		h.addTeam("pro", withLevel(model.LevelVeryCompetitive))
		h.addTeam("elsewhere", withLevel(model.LevelBeginner), withClub("club-2"))

		_, err := h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{TeamID: me.ID})

		Convey("Then no opponent is reported as a normal negative result", func() {
			So(errors.Is(err, service.ErrNoOpponent), ShouldBeTrue)
			So(service.ReasonOf(err), ShouldEqual, "No opponents found at BEGINNER or adjacent levels")
			So(h.team(me.ID).Status, ShouldEqual, model.TeamAvailable)
		})
	})

	Convey("Given a team without a partner", t, func() {
		h := newHarness()
		me := h.addTeam("me", withNoPartner(), withStatus(model.TeamPendingPartner))
		h.addTeam("other")

		_, err := h.svc.FindOpponentAndCreateMatch(h.ctx, captain(me), service.FindRequest{TeamID: me.ID})

		Convey("Then it cannot enter matchmaking", func() {
			So(errors.Is(err, service.ErrInvalidState), ShouldBeTrue)
			So(service.ReasonOf(err), ShouldEqual, "Team is missing a second player")
		})
	})
}

func TestCreateMatchWithLocking(t *testing.T) {
	Convey("Given a contested team", t, func() {
		h := newHarness()
		x := h.addTeam("x")
		var rivals []model.Team
		for _, name := range []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"} {
			rivals = append(rivals, h.addTeam(name))
		}

		Convey("When every rival tries to claim it at once", func() {
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for _, r := range rivals {
				wg.Add(1)
				go func(r model.Team) {
					defer wg.Done()
					_, err := h.svc.CreateMatchWithLocking(h.ctx, r.ID, x.ID, model.ModeCompetitive)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, service.ErrConflict):
						conflicts++
					}
				}(r)
			}
			wg.Wait()

			Convey("Then exactly one succeeds and the rest conflict", func() {
				So(wins, ShouldEqual, 1)
				So(conflicts, ShouldEqual, len(rivals)-1)
			})

			Convey("Then the losers are untouched", func() {
				inMatch := 0
				for _, r := range rivals {
					if h.team(r.ID).Status == model.TeamInMatch {
						inMatch++
					}
				}
				So(inMatch, ShouldEqual, 1)
			})
		})
	})

	Convey("Given two teams claimed from both sides at once", t, func() {
		h := newHarness()
		a := h.addTeam("a")
		b := h.addTeam("b")

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
			wg.Add(1)
			go func(first, second string) {
				defer wg.Done()
				_, err := h.svc.CreateMatchWithLocking(h.ctx, first, second, model.ModeCompetitive)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, service.ErrConflict):
					conflicts++
				}
			}(pair[0], pair[1])
		}
		wg.Wait()

		Convey("Then one match is created and the other side may retry", func() {
			So(wins, ShouldEqual, 1)
			So(conflicts, ShouldEqual, 1)
		})
	})

	Convey("Given a store that records claim order", t, func() {
		st := &claimOrderStore{MemStore: repository.NewMemStore()}
		svc := service.New(service.WithStore(st))
		ctx := context.Background()
		for _, id := range []string{"alpha", "zulu"} {
			team := model.Team{
				ID: id, ClubID: club, Name: id, CaptainID: "cap-" + id, PartnerID: "mate-" + id,
				Level: model.LevelIntermediate, Mode: model.ModeCompetitive, Squad: model.SquadDoubles,
				Status: model.TeamAvailable, CreatedAt: epoch,
			}
			So(st.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				return tx.CreateTeam(ctx, &team)
			}), ShouldBeNil)
		}

		Convey("When the requester sorts after its opponent", func() {
			m, err := svc.CreateMatchWithLocking(ctx, "zulu", "alpha", model.ModeCompetitive)
			So(err, ShouldBeNil)

			Convey("Then teams are claimed in id order", func() {
				So(st.claimed(), ShouldResemble, []string{"alpha", "zulu"})
			})

			Convey("Then the requester stays team A", func() {
				So(m.TeamAID, ShouldEqual, "zulu")
				So(m.TeamBID, ShouldEqual, "alpha")
			})
		})
	})

	Convey("Given two available teams", t, func() {
		h := newHarness()
		a := h.addTeam("a")
		b := h.addTeam("b")

		Convey("When the opponent was claimed meanwhile", func() {
			c := h.addTeam("c")
			h.matchBetween(c, b, model.ModeCompetitive)
			_, err := h.svc.CreateMatchWithLocking(h.ctx, a.ID, b.ID, model.ModeCompetitive)

			Convey("Then the attempt conflicts and rolls back", func() {
				So(errors.Is(err, service.ErrConflict), ShouldBeTrue)
				var appErr *service.Error
				So(errors.As(err, &appErr), ShouldBeTrue)
				So(appErr.Retryable(), ShouldBeTrue)
				So(h.team(a.ID).Status, ShouldEqual, model.TeamAvailable)
			})
		})

		Convey("When a team is paired with itself", func() {
			_, err := h.svc.CreateMatchWithLocking(h.ctx, a.ID, a.ID, model.ModeCompetitive)
			So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
		})

		Convey("When the teams are from different clubs", func() {
			other := h.addTeam("other", withClub("club-2"))
			_, err := h.svc.CreateMatchWithLocking(h.ctx, a.ID, other.ID, model.ModeCompetitive)

			Convey("Then nothing is claimed", func() {
				So(errors.Is(err, service.ErrValidation), ShouldBeTrue)
				So(h.team(a.ID).Status, ShouldEqual, model.TeamAvailable)
				So(h.team(other.ID).Status, ShouldEqual, model.TeamAvailable)
			})
		})

		Convey("When a queued team is matched", func() {
			q := h.addTeam("queued", withQueued())
			h.matchBetween(q, b, model.ModeCompetitive)

			Convey("Then its queue flag is cleared", func() {
				So(h.team(q.ID).Queued, ShouldBeFalse)
			})
		})
	})
}

// claimOrderStore records the team ids passed to UpdateTeamIf.
type claimOrderStore struct {
	*repository.MemStore

	mu  sync.Mutex
	ids []string
}

func (s *claimOrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.MemStore.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &claimOrderTx{Tx: tx, store: s})
	})
}

func (s *claimOrderStore) claimed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type claimOrderTx struct {
	repository.Tx
	store *claimOrderStore
}

func (t *claimOrderTx) UpdateTeamIf(ctx context.Context, id string, from []model.TeamStatus, mutate func(*model.Team) error) (model.Team, error) {
	t.store.mu.Lock()
	t.store.ids = append(t.store.ids, id)
	t.store.mu.Unlock()
	return t.Tx.UpdateTeamIf(ctx, id, from, mutate)
}
