package eligibility_test

import (
	"testing"
	"time"

	"github.com/okian/padel/internal/domain/eligibility"
	"github.com/okian/padel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func readyTeam() *model.Team {
	return &model.Team{
		ID:        "t1",
		Name:      "Smash Bros",
		CaptainID: "u1",
		PartnerID: "u2",
		Squad:     model.SquadDoubles,
		Level:     model.LevelIntermediate,
		Status:    model.TeamAvailable,
	}
}

func TestCheck(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	none := map[string]struct{}{}

	Convey("Given an available team with a full roster", t, func() {
		team := readyTeam()

		Convey("Then it is eligible in both modes", func() {
			So(eligibility.Check(team, none, eligibility.Options{Now: now}).Eligible, ShouldBeTrue)
			So(eligibility.Check(team, none, eligibility.Options{Friendly: true, Now: now}).Eligible, ShouldBeTrue)
		})

		Convey("When the partner is missing", func() {
			team.PartnerID = ""
			team.Name = ""
			res := eligibility.Check(team, none, eligibility.Options{Now: now})

			Convey("Then the roster rule is reported first", func() {
				So(res.Eligible, ShouldBeFalse)
				So(res.Reason, ShouldContainSubstring, "second player")
			})
		})

		Convey("When the name is empty", func() {
			team.Name = ""
			So(eligibility.Check(team, none, eligibility.Options{}).Reason, ShouldEqual, "Team has no name")
		})

		Convey("When the team is in a match", func() {
			team.Status = model.TeamInMatch
			res := eligibility.Check(team, none, eligibility.Options{Friendly: true})
			So(res.Eligible, ShouldBeFalse)
			So(res.Reason, ShouldEqual, "Team is already in a match")
		})

		Convey("When the team is cooling down", func() {
			team.EnterCooldown(now.Add(3*24*time.Hour - time.Hour))

			Convey("Then competitive play is refused with the days left", func() {
				res := eligibility.Check(team, none, eligibility.Options{Now: now})
				So(res.Eligible, ShouldBeFalse)
				So(res.Reason, ShouldEqual, "In cooldown for 3 more days")
			})

			Convey("Then friendly play bypasses the cooldown", func() {
				So(eligibility.Check(team, none, eligibility.Options{Friendly: true, Now: now}).Eligible, ShouldBeTrue)
			})

			Convey("Then the last day reads singular", func() {
				team.EnterCooldown(now.Add(2 * time.Hour))
				So(eligibility.Check(team, none, eligibility.Options{Now: now}).Reason, ShouldEqual, "In cooldown for 1 more day")
			})
		})

		Convey("When the team is unavailable or inactive", func() {
			team.Status = model.TeamUnavailable
			So(eligibility.Check(team, none, eligibility.Options{Friendly: true}).Reason, ShouldEqual, "Team is unavailable")
			team.Status = model.TeamInactive
			So(eligibility.Check(team, none, eligibility.Options{Friendly: true}).Reason, ShouldEqual, "Team is inactive")
		})

		Convey("When the team has an open dispute", func() {
			res := eligibility.Check(team, map[string]struct{}{"t1": {}}, eligibility.Options{})
			So(res.Eligible, ShouldBeFalse)
			So(res.Reason, ShouldEqual, "Team has an open dispute")
		})

		Convey("When the status is pending a partner", func() {
			team.Status = model.TeamPendingPartner
			res := eligibility.Check(team, none, eligibility.Options{})
			So(res.Eligible, ShouldBeFalse)
			So(res.Reason, ShouldContainSubstring, "PENDING_PARTNER")
		})
	})

	Convey("Given no team", t, func() {
		So(eligibility.Check(nil, nil, eligibility.Options{}).Eligible, ShouldBeFalse)
	})
}
