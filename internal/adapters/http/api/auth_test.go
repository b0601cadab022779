package api_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/padel/internal/adapters/http/api"
	"github.com/okian/padel/internal/domain/model"
)

func TestAuthenticator(t *testing.T) {
	convey.Convey("Given an authenticator", t, func() {
		auth := api.NewAuthenticator(secret)

		convey.Convey("When a token is issued for an admin", func() {
			id := model.Identity{UserID: "u-1", ClubID: "club-1", Role: model.RoleAdmin}
			tok, err := auth.IssueToken(id, time.Hour)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then it verifies back to the same identity", func() {
				got, err := auth.Verify(tok)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldResemble, id)
			})
		})

		convey.Convey("When a token carries no role", func() {
			tok, err := auth.IssueToken(model.Identity{UserID: "u-2", ClubID: "club-1"}, time.Hour)
			convey.So(err, convey.ShouldBeNil)
			got, err := auth.Verify(tok)
			convey.So(err, convey.ShouldBeNil)
			convey.So(got.Role, convey.ShouldEqual, model.RolePlayer)
		})

		convey.Convey("Then an expired token is rejected", func() {
			tok, err := auth.IssueToken(model.Identity{UserID: "u-3"}, -time.Minute)
			convey.So(err, convey.ShouldBeNil)
			_, err = auth.Verify(tok)
			convey.So(errors.Is(err, api.ErrUnauthenticated), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "expired")
		})

		convey.Convey("Then a token with another algorithm is rejected", func() {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &api.Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "u-4",
					Issuer:    "padel",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}).SignedString([]byte(secret))
			convey.So(err, convey.ShouldBeNil)
			_, err = auth.Verify(tok)
			convey.So(errors.Is(err, api.ErrUnauthenticated), convey.ShouldBeTrue)
		})

		convey.Convey("Then an unknown role is rejected", func() {
			tok, err := auth.IssueToken(model.Identity{UserID: "u-5", Role: "OWNER"}, time.Hour)
			convey.So(err, convey.ShouldBeNil)
			_, err = auth.Verify(tok)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Then an empty user id cannot get a token", func() {
			_, err := auth.IssueToken(model.Identity{}, time.Hour)
			convey.So(errors.Is(err, api.ErrUnauthenticated), convey.ShouldBeTrue)
		})

		convey.Convey("Then an empty token is rejected", func() {
			_, err := auth.Verify("")
			convey.So(errors.Is(err, api.ErrUnauthenticated), convey.ShouldBeTrue)
		})
	})
}
