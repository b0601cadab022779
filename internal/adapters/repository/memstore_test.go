package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/adapters/repository/storetest"
	"github.com/okian/padel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store {
		return repository.NewMemStore()
	})
}

func TestMemStoreClose(t *testing.T) {
	Convey("Given a closed store", t, func() {
		s := repository.NewMemStore()
		So(s.Close(), ShouldBeNil)
		ctx := context.Background()

		Convey("Then reads and transactions fail", func() {
			_, err := s.GetTeam(ctx, "x")
			So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			err = s.InTx(ctx, func(context.Context, repository.Tx) error { return nil })
			So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
		})
	})
}

func TestMemStoreTxVisibility(t *testing.T) {
	Convey("Given a transaction that created a team", t, func() {
		s := repository.NewMemStore()
		ctx := context.Background()
		team := storetest.NewTeam("club-1", "Staged", model.LevelBeginner)

		err := s.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := tx.CreateTeam(ctx, team); err != nil {
				return err
			}
			got, err := tx.ListTeams(ctx, repository.TeamFilter{ClubID: "club-1"})
			if err != nil {
				return err
			}
			So(len(got), ShouldEqual, 1)
			_, err = tx.UpdateTeamIf(ctx, team.ID, []model.TeamStatus{model.TeamAvailable}, func(t *model.Team) error {
				t.Queued = true
				return nil
			})
			return err
		})

		Convey("Then the staged writes commit together", func() {
			So(err, ShouldBeNil)
			got, err := s.GetTeam(ctx, team.ID)
			So(err, ShouldBeNil)
			So(got.Queued, ShouldBeTrue)
		})
	})
}
