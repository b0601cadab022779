// Package storetest is a behavioural test-suite every repository.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns an empty store. It is called once per scenario.
type Factory func(t *testing.T) repository.Store

var base = time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

// NewTeam returns a complete, available doubles team in clubID.
func NewTeam(clubID, name string, level model.Level) *model.Team {
	return &model.Team{
		ID:        uuid.NewString(),
		ClubID:    clubID,
		Name:      name,
		CaptainID: uuid.NewString(),
		PartnerID: uuid.NewString(),
		Level:     level,
		Mode:      model.ModeCompetitive,
		Squad:     model.SquadDoubles,
		Status:    model.TeamAvailable,
		CreatedAt: base,
	}
}

// NewMatch returns a proposed match between a and b.
func NewMatch(a, b *model.Team) *model.Match {
	return &model.Match{
		ID:        uuid.NewString(),
		ClubID:    a.ClubID,
		TeamAID:   a.ID,
		TeamBID:   b.ID,
		Status:    model.MatchProposed,
		Mode:      model.ModeCompetitive,
		WeekCycle: model.WeekCycle(base),
		Deadline:  base.Add(model.DefaultMatchDeadline),
		CreatedAt: base,
	}
}

func seed(ctx context.Context, s repository.Store, teams ...*model.Team) {
	err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, t := range teams {
			if err := tx.CreateTeam(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	So(err, ShouldBeNil)
}

func createMatch(ctx context.Context, s repository.Store, m *model.Match) {
	So(s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateMatch(ctx, m)
	}), ShouldBeNil)
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := newStore(t)
		Reset(func() { _ = s.Close() })

		Convey("When a team is created", func() {
			a := NewTeam("club-1", "Lobs", model.LevelAdvanced)
			seed(ctx, s, a)

			Convey("Then it can be read back", func() {
				got, err := s.GetTeam(ctx, a.ID)
				So(err, ShouldBeNil)
				So(got.Name, ShouldEqual, "Lobs")
				So(got.Level, ShouldEqual, model.LevelAdvanced)
				So(got.Status, ShouldEqual, model.TeamAvailable)
			})

			Convey("Then a second team with the same name in the club conflicts", func() {
				dup := NewTeam("club-1", "Lobs", model.LevelBeginner)
				err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					return tx.CreateTeam(ctx, dup)
				})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})

			Convey("Then the same name is fine in another club", func() {
				seed(ctx, s, NewTeam("club-2", "Lobs", model.LevelBeginner))
			})
		})

		Convey("When reading unknown ids", func() {
			_, err := s.GetTeam(ctx, uuid.NewString())
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.GetMatch(ctx, uuid.NewString())
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			_, err = s.GetDisputeByMatch(ctx, uuid.NewString())
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a conditional update runs", func() {
			a := NewTeam("club-1", "Volley", model.LevelIntermediate)
			seed(ctx, s, a)

			Convey("And the status matches", func() {
				var updated model.Team
				err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					var err error
					updated, err = tx.UpdateTeamIf(ctx, a.ID, []model.TeamStatus{model.TeamAvailable}, func(t *model.Team) error {
						t.SetStatus(model.TeamInMatch)
						t.LastOpponentID = "other"
						return nil
					})
					return err
				})

				Convey("Then the write is committed", func() {
					So(err, ShouldBeNil)
					So(updated.Status, ShouldEqual, model.TeamInMatch)
					got, _ := s.GetTeam(ctx, a.ID)
					So(got.Status, ShouldEqual, model.TeamInMatch)
					So(got.LastOpponentID, ShouldEqual, "other")
				})
			})

			Convey("And the status no longer matches", func() {
				err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					_, err := tx.UpdateTeamIf(ctx, a.ID, []model.TeamStatus{model.TeamCooldown}, func(t *model.Team) error {
						t.SetStatus(model.TeamAvailable)
						return nil
					})
					return err
				})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})

			Convey("And the team does not exist", func() {
				err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					_, err := tx.UpdateTeamIf(ctx, uuid.NewString(), nil, func(*model.Team) error { return nil })
					return err
				})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And the mutation refuses", func() {
				refuse := errors.New("refused")
				err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					_, err := tx.UpdateTeamIf(ctx, a.ID, nil, func(*model.Team) error { return refuse })
					return err
				})
				So(errors.Is(err, refuse), ShouldBeTrue)
			})
		})

		Convey("When a transaction fails after writing", func() {
			a := NewTeam("club-1", "Bandeja", model.LevelBeginner)
			b := NewTeam("club-1", "Vibora", model.LevelBeginner)
			seed(ctx, s, a, b)

			boom := errors.New("boom")
			err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				if _, err := tx.UpdateTeamIf(ctx, a.ID, nil, func(t *model.Team) error {
					t.SetStatus(model.TeamInMatch)
					return nil
				}); err != nil {
					return err
				}
				if err := tx.CreateMatch(ctx, NewMatch(a, b)); err != nil {
					return err
				}
				return boom
			})

			Convey("Then nothing is visible", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				got, _ := s.GetTeam(ctx, a.ID)
				So(got.Status, ShouldEqual, model.TeamAvailable)
				ms, err := s.ListMatches(ctx, repository.MatchFilter{TeamID: a.ID})
				So(err, ShouldBeNil)
				So(ms, ShouldBeEmpty)
			})
		})

		Convey("When many transactions race to claim one team", func() {
			a := NewTeam("club-1", "Chiquita", model.LevelAdvanced)
			seed(ctx, s, a)

			const racers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
						_, err := tx.UpdateTeamIf(ctx, a.ID, []model.TeamStatus{model.TeamAvailable}, func(t *model.Team) error {
							t.SetStatus(model.TeamInMatch)
							return nil
						})
						return err
					})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, repository.ErrConflict):
						conflicts++
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(wins, ShouldEqual, 1)
				So(conflicts, ShouldEqual, racers-1)
			})
		})

		Convey("When two transactions claim one pair in opposite order", func() {
			x := NewTeam("club-1", "Xana", model.LevelAdvanced)
			y := NewTeam("club-1", "Yago", model.LevelAdvanced)
			seed(ctx, s, x, y)

			available := []model.TeamStatus{model.TeamAvailable}
			toInMatch := func(t *model.Team) error {
				t.SetStatus(model.TeamInMatch)
				return nil
			}

			// Each side holds its first row before reaching for the second.
			// Single-writer stores never get both first rows, so the wait
			// is bounded.
			var arrived sync.WaitGroup
			arrived.Add(2)
			both := make(chan struct{})
			go func() {
				arrived.Wait()
				close(both)
			}()

			claimPair := func(first, second string) error {
				return s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					_, err := tx.UpdateTeamIf(ctx, first, available, toInMatch)
					arrived.Done()
					if err != nil {
						return err
					}
					select {
					case <-both:
					case <-time.After(250 * time.Millisecond):
					}
					_, err = tx.UpdateTeamIf(ctx, second, available, toInMatch)
					return err
				})
			}

			errs := make([]error, 2)
			var wg sync.WaitGroup
			for i, pair := range [][2]string{{x.ID, y.ID}, {y.ID, x.ID}} {
				wg.Add(1)
				go func(i int, first, second string) {
					defer wg.Done()
					errs[i] = claimPair(first, second)
				}(i, pair[0], pair[1])
			}
			wg.Wait()

			Convey("Then one commits and the other reports a conflict", func() {
				wins, conflicts := 0, 0
				for _, err := range errs {
					switch {
					case err == nil:
						wins++
					case errors.Is(err, repository.ErrConflict):
						conflicts++
					}
				}
				So(wins, ShouldEqual, 1)
				So(conflicts, ShouldEqual, 1)
			})

			Convey("Then both teams end up claimed once", func() {
				gx, err := s.GetTeam(ctx, x.ID)
				So(err, ShouldBeNil)
				gy, err := s.GetTeam(ctx, y.ID)
				So(err, ShouldBeNil)
				So(gx.Status, ShouldEqual, model.TeamInMatch)
				So(gy.Status, ShouldEqual, model.TeamInMatch)
			})
		})

		Convey("When listing teams with filters", func() {
			avail := NewTeam("club-1", "A", model.LevelBeginner)
			queued := NewTeam("club-1", "B", model.LevelBeginner)
			queued.Queued = true
			queued.CreatedAt = base.Add(time.Minute)
			cooling := NewTeam("club-1", "C", model.LevelBeginner)
			cooling.EnterCooldown(base.Add(time.Hour))
			cooling.CreatedAt = base.Add(2 * time.Minute)
			away := NewTeam("club-1", "D", model.LevelBeginner)
			away.Status = model.TeamUnavailable
			back := base.Add(2 * time.Hour)
			away.UnavailableUntil = &back
			played := base.Add(40 * 24 * time.Hour)
			recent := NewTeam("club-1", "E", model.LevelBeginner)
			recent.LastMatchCompletedAt = &played
			recent.CreatedAt = base.Add(3 * time.Minute)
			elsewhere := NewTeam("club-2", "F", model.LevelBeginner)
			seed(ctx, s, avail, queued, cooling, away, recent, elsewhere)

			Convey("Then club and status narrow the result in creation order", func() {
				got, err := s.ListTeams(ctx, repository.TeamFilter{ClubID: "club-1", Statuses: []model.TeamStatus{model.TeamAvailable}})
				So(err, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{avail.ID, queued.ID, recent.ID})
			})

			Convey("Then the queued flag filters", func() {
				yes := true
				got, _ := s.ListTeams(ctx, repository.TeamFilter{Queued: &yes})
				So(ids(got), ShouldResemble, []string{queued.ID})
			})

			Convey("Then expired cooldowns are found by time", func() {
				early := base.Add(30 * time.Minute)
				got, _ := s.ListTeams(ctx, repository.TeamFilter{CooldownBefore: &early})
				So(got, ShouldBeEmpty)
				late := base.Add(time.Hour)
				got, _ = s.ListTeams(ctx, repository.TeamFilter{CooldownBefore: &late})
				So(ids(got), ShouldResemble, []string{cooling.ID})
			})

			Convey("Then return dates are found by time", func() {
				late := base.Add(3 * time.Hour)
				got, _ := s.ListTeams(ctx, repository.TeamFilter{UnavailableBefore: &late})
				So(ids(got), ShouldResemble, []string{away.ID})
			})

			Convey("Then activity falls back to creation time", func() {
				cutoff := base.Add(30 * 24 * time.Hour)
				got, _ := s.ListTeams(ctx, repository.TeamFilter{ClubID: "club-1", ActiveBefore: &cutoff})
				So(ids(got), ShouldNotContain, recent.ID)
				So(ids(got), ShouldContain, avail.ID)
			})

			Convey("Then a limit is honoured", func() {
				got, _ := s.ListTeams(ctx, repository.TeamFilter{Limit: 2})
				So(len(got), ShouldEqual, 2)
			})
		})

		Convey("When matches complete", func() {
			me := NewTeam("club-1", "Me", model.LevelAdvanced)
			x := NewTeam("club-1", "X", model.LevelAdvanced)
			y := NewTeam("club-1", "Y", model.LevelAdvanced)
			z := NewTeam("club-1", "Z", model.LevelAdvanced)
			seed(ctx, s, me, x, y, z)

			for i, opp := range []*model.Team{x, y, z} {
				m := NewMatch(me, opp)
				if i == 1 {
					m = NewMatch(opp, me)
				}
				done := base.Add(time.Duration(i+1) * 24 * time.Hour)
				m.Status = model.MatchCompleted
				m.Result = model.OutcomeWin
				m.CompletedAt = &done
				m.CreatedAt = base.Add(time.Duration(i) * time.Hour)
				createMatch(ctx, s, m)
			}
			open := NewMatch(me, x)
			open.CreatedAt = base.Add(10 * time.Hour)
			createMatch(ctx, s, open)

			Convey("Then recent opponents come newest first from either side", func() {
				got, err := s.RecentOpponents(ctx, me.ID, 2)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []string{z.ID, y.ID})
			})

			Convey("Then team history lists newest first", func() {
				got, err := s.ListMatches(ctx, repository.MatchFilter{TeamID: me.ID})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 4)
				So(got[0].ID, ShouldEqual, open.ID)
			})
		})

		Convey("When a result awaits confirmation", func() {
			a := NewTeam("club-1", "Globo", model.LevelBeginner)
			b := NewTeam("club-1", "Rulo", model.LevelBeginner)
			seed(ctx, s, a, b)
			m := NewMatch(a, b)
			createMatch(ctx, s, m)

			err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.UpdateMatchIf(ctx, m.ID, []model.MatchStatus{model.MatchProposed}, func(m *model.Match) error {
					m.RecordResult(model.OutcomeLoss, "4-6 3-6", a.CaptainID, base.Add(48*time.Hour))
					return nil
				})
				return err
			})
			So(err, ShouldBeNil)

			Convey("Then the deadline filter finds it only once due", func() {
				before := base.Add(47 * time.Hour)
				got, _ := s.ListMatches(ctx, repository.MatchFilter{
					Statuses: []model.MatchStatus{model.MatchAwaitingConfirmation}, DeadlineBefore: &before,
				})
				So(got, ShouldBeEmpty)
				after := base.Add(48 * time.Hour)
				got, _ = s.ListMatches(ctx, repository.MatchFilter{
					Statuses: []model.MatchStatus{model.MatchAwaitingConfirmation}, DeadlineBefore: &after,
				})
				So(len(got), ShouldEqual, 1)
				So(got[0].Result, ShouldEqual, model.OutcomeLoss)
				So(got[0].SubmittedBy, ShouldEqual, a.CaptainID)
			})

			Convey("Then a transition from the wrong state conflicts", func() {
				err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					_, err := tx.UpdateMatchIf(ctx, m.ID, []model.MatchStatus{model.MatchProposed}, func(*model.Match) error { return nil })
					return err
				})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})

			Convey("Then a dispute marks both teams", func() {
				d := &model.Dispute{
					ID: uuid.NewString(), MatchID: m.ID, ClubID: m.ClubID, TeamAID: a.ID, TeamBID: b.ID,
					RaisedBy: b.CaptainID, Reason: "wrong score", Status: model.DisputeOpen, CreatedAt: base,
				}
				So(s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					return tx.CreateDispute(ctx, d)
				}), ShouldBeNil)

				disputed, err := s.DisputedTeamIDs(ctx)
				So(err, ShouldBeNil)
				So(disputed, ShouldContainKey, a.ID)
				So(disputed, ShouldContainKey, b.ID)

				got, err := s.GetDisputeByMatch(ctx, m.ID)
				So(err, ShouldBeNil)
				So(got.Reason, ShouldEqual, "wrong score")

				again := *d
				again.ID = uuid.NewString()
				err = s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
					return tx.CreateDispute(ctx, &again)
				})
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When notifications are written", func() {
			first := &model.Notification{ID: uuid.NewString(), UserID: "u1", Kind: model.KindMatchCreated, Message: "hi", CreatedAt: base}
			second := &model.Notification{ID: uuid.NewString(), UserID: "u2", Kind: model.KindMatchCreated, Message: "hi", CreatedAt: base.Add(time.Minute)}
			So(s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
				if err := tx.AddNotification(ctx, second); err != nil {
					return err
				}
				return tx.AddNotification(ctx, first)
			}), ShouldBeNil)

			Convey("Then pending rows come oldest first", func() {
				got, err := s.PendingNotifications(ctx, base.Add(time.Hour), 10)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].ID, ShouldEqual, first.ID)

				got, _ = s.PendingNotifications(ctx, base, 10)
				So(len(got), ShouldEqual, 1)
			})

			Convey("Then delivered rows are no longer pending", func() {
				So(s.MarkNotificationDelivered(ctx, first.ID, base.Add(time.Second)), ShouldBeNil)
				got, _ := s.PendingNotifications(ctx, base.Add(time.Hour), 10)
				So(len(got), ShouldEqual, 1)
				So(got[0].ID, ShouldEqual, second.ID)

				st, err := s.Stats(ctx)
				So(err, ShouldBeNil)
				So(st.PendingNotifications, ShouldEqual, 1)
			})

			Convey("Then one user's pending rows can be read alone", func() {
				got, err := s.PendingNotificationsFor(ctx, "u2", 10)
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got[0].ID, ShouldEqual, second.ID)

				So(s.MarkNotificationDelivered(ctx, second.ID, base.Add(time.Hour)), ShouldBeNil)
				got, _ = s.PendingNotificationsFor(ctx, "u2", 10)
				So(got, ShouldBeEmpty)
			})

			Convey("Then marking an unknown row fails", func() {
				err := s.MarkNotificationDelivered(ctx, uuid.NewString(), base)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When computing stats", func() {
			a := NewTeam("club-1", "One", model.LevelBeginner)
			b := NewTeam("club-1", "Two", model.LevelBeginner)
			b.EnterCooldown(base)
			seed(ctx, s, a, b)
			createMatch(ctx, s, NewMatch(a, b))

			st, err := s.Stats(ctx)
			So(err, ShouldBeNil)
			So(st.TeamsByStatus[model.TeamAvailable], ShouldEqual, 1)
			So(st.TeamsByStatus[model.TeamCooldown], ShouldEqual, 1)
			So(st.MatchesByStatus[model.MatchProposed], ShouldEqual, 1)
		})
	})
}

func ids(teams []model.Team) []string {
	out := make([]string, 0, len(teams))
	for _, t := range teams {
		out = append(out, t.ID)
	}
	return out
}
