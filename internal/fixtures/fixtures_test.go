package fixtures_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/padel/internal/adapters/repository"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/internal/fixtures"
	"github.com/okian/padel/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var now = time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

func TestGenerate(t *testing.T) {
	Convey("Given a league of three clubs with ten teams each", t, func() {
		teams := fixtures.Generate(fixtures.Spec{Clubs: 3, TeamsPerClub: 10, Now: now})

		Convey("Then every team is created with stable ids", func() {
			So(teams, ShouldHaveLength, 30)
			So(teams[0].ID, ShouldEqual, fixtures.TeamID(1, 1))
			So(teams[0].ClubID, ShouldEqual, fixtures.ClubID(1))
			So(teams[29].CaptainID, ShouldEqual, fixtures.CaptainID(3, 10))
		})

		Convey("Then the mix of modes and squads is fixed", func() {
			So(teams[4].Mode, ShouldEqual, model.ModeFriendly)
			So(teams[6].Squad, ShouldEqual, model.SquadSingles)
			So(teams[6].PartnerID, ShouldBeEmpty)
			So(teams[9].Status, ShouldEqual, model.TeamPendingPartner)
			So(teams[0].Status, ShouldEqual, model.TeamAvailable)
		})

		Convey("Then the same seed gives the same points", func() {
			again := fixtures.Generate(fixtures.Spec{Clubs: 3, TeamsPerClub: 10, Now: now})
			for i := range teams {
				So(again[i].Points, ShouldEqual, teams[i].Points)
			}
		})

		Convey("Then every level is valid", func() {
			for _, team := range teams {
				So(team.Level.Valid(), ShouldBeTrue)
			}
		})
	})
}

func TestSeed(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		teams := fixtures.Generate(fixtures.Spec{Clubs: 4, TeamsPerClub: 6, Now: now})

		n, err := fixtures.Seed(ctx, store, teams)
		So(err, ShouldBeNil)

		Convey("Then every team is stored", func() {
			So(n, ShouldEqual, 24)
			club, err := store.ListTeams(ctx, repository.TeamFilter{ClubID: fixtures.ClubID(2)})
			So(err, ShouldBeNil)
			So(club, ShouldHaveLength, 6)
		})

		Convey("Then seeding again creates nothing", func() {
			n, err := fixtures.Seed(ctx, store, teams)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}
