package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/padel/internal/adapters/http/api"
	"github.com/okian/padel/internal/adapters/notify"
	"github.com/okian/padel/internal/adapters/repository"
	service "github.com/okian/padel/internal/app"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
)

const secret = "test-secret"

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type env struct {
	srv   *httptest.Server
	auth  *api.Authenticator
	store *repository.MemStore
	svc   *service.Service
	hub   *notify.Hub
}

func newEnv() *env {
	store := repository.NewMemStore()
	hub := notify.NewHub()
	svc := service.New(service.WithStore(store), service.WithSink(hub), service.WithWorkerCount(1))
	auth := api.NewAuthenticator(secret)

	mux := http.NewServeMux()
	api.NewServer(svc, auth, api.WithSubscriber(hub)).Register(mux)
	return &env{srv: httptest.NewServer(mux), auth: auth, store: store, svc: svc, hub: hub}
}

func (e *env) close() {
	_ = e.svc.Stop(context.Background())
	_ = e.hub.Close()
	e.srv.Close()
}

func (e *env) addTeam(name string, points int) model.Team {
	t := model.Team{
		ID:        "team-" + name,
		ClubID:    "club-1",
		Name:      name,
		CaptainID: "cap-" + name,
		PartnerID: "mate-" + name,
		Level:     model.LevelIntermediate,
		Mode:      model.ModeCompetitive,
		Squad:     model.SquadDoubles,
		Status:    model.TeamAvailable,
		Points:    points,
		CreatedAt: time.Now().UTC(),
	}
	err := e.store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateTeam(ctx, &t)
	})
	So(err, ShouldBeNil)
	return t
}

func (e *env) token(userID string, role model.Role) string {
	tok, err := e.auth.IssueToken(model.Identity{UserID: userID, ClubID: "club-1", Role: role}, time.Hour)
	So(err, ShouldBeNil)
	return tok
}

func (e *env) do(method, path, token string, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		So(json.NewEncoder(&buf).Encode(body), ShouldBeNil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	So(err, ShouldBeNil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	So(err, ShouldBeNil)
	defer func() { _ = resp.Body.Close() }()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestMatchRoutes(t *testing.T) {
	Convey("Given a running API with two teams", t, func() {
		e := newEnv()
		Reset(e.close)
		a := e.addTeam("alpha", 10)
		b := e.addTeam("bravo", 12)
		capA := e.token(a.CaptainID, model.RolePlayer)
		capB := e.token(b.CaptainID, model.RolePlayer)

		Convey("When a request has no token", func() {
			code, body := e.do(http.MethodPost, "/v1/matches/find", "", map[string]any{"team_id": a.ID})

			Convey("Then it is rejected as unauthenticated", func() {
				So(code, ShouldEqual, http.StatusUnauthorized)
				So(body["code"], ShouldEqual, "unauthenticated")
			})
		})

		Convey("When a token is signed with another secret", func() {
			other, err := api.NewAuthenticator("other").IssueToken(model.Identity{UserID: a.CaptainID}, time.Hour)
			So(err, ShouldBeNil)
			code, _ := e.do(http.MethodGet, "/v1/teams/"+a.ID, other, nil)
			So(code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When captain A finds an opponent", func() {
			code, body := e.do(http.MethodPost, "/v1/matches/find", capA, map[string]any{"team_id": a.ID})
			So(code, ShouldEqual, http.StatusCreated)
			So(body["matched"], ShouldEqual, true)
			match := body["match"].(map[string]any)
			id := match["id"].(string)
			So(match["team_b_id"], ShouldEqual, b.ID)

			Convey("Then searching again is a conflict of state", func() {
				code, body := e.do(http.MethodPost, "/v1/matches/find", capA, map[string]any{"team_id": a.ID})
				So(code, ShouldEqual, http.StatusConflict)
				So(body["code"], ShouldEqual, "invalid_state")
				So(body["message"], ShouldEqual, "Team is already in a match")
			})

			Convey("Then team A cannot accept its own invitation", func() {
				code, body := e.do(http.MethodPost, "/v1/matches/"+id+"/accept", capA, nil)
				So(code, ShouldEqual, http.StatusForbidden)
				So(body["code"], ShouldEqual, "unauthorized")
			})

			Convey("Then the full lifecycle runs over HTTP", func() {
				code, body := e.do(http.MethodPost, "/v1/matches/"+id+"/accept", capB, nil)
				So(code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, string(model.MatchAccepted))

				at := time.Now().Add(24 * time.Hour).UTC()
				code, body = e.do(http.MethodPost, "/v1/matches/"+id+"/schedule", capA, map[string]any{"scheduled_at": at})
				So(code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, string(model.MatchScheduled))

				code, body = e.do(http.MethodPost, "/v1/matches/"+id+"/result", capB,
					map[string]any{"outcome": "WIN", "score": "6-3 6-4"})
				So(code, ShouldEqual, http.StatusOK)
				So(body["result"], ShouldEqual, string(model.OutcomeLoss))

				code, body = e.do(http.MethodPost, "/v1/matches/"+id+"/confirm", capB, nil)
				So(code, ShouldEqual, http.StatusForbidden)
				So(body["code"], ShouldEqual, "self_confirm")

				code, body = e.do(http.MethodPost, "/v1/matches/"+id+"/confirm", capA, nil)
				So(code, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, string(model.MatchCompleted))

				code, body = e.do(http.MethodGet, "/v1/teams/"+b.ID, capA, nil)
				So(code, ShouldEqual, http.StatusOK)
				So(body["points"], ShouldEqual, 15.0)
				So(body["status"], ShouldEqual, string(model.TeamCooldown))

				code, _ = e.do(http.MethodGet, "/v1/teams/"+a.ID+"/matches?limit=5", capA, nil)
				So(code, ShouldEqual, http.StatusOK)
			})

			Convey("Then a result can be disputed", func() {
				e.do(http.MethodPost, "/v1/matches/"+id+"/accept", capB, nil)
				e.do(http.MethodPost, "/v1/matches/"+id+"/result", capA, map[string]any{"outcome": "WIN"})

				code, body := e.do(http.MethodPost, "/v1/matches/"+id+"/dispute", capB, map[string]any{"reason": "we won"})
				So(code, ShouldEqual, http.StatusCreated)
				So(body["match_id"], ShouldEqual, id)

				code, body = e.do(http.MethodPost, "/v1/matches/"+id+"/dispute", capB, map[string]any{"reason": "again"})
				So(code, ShouldEqual, http.StatusConflict)
				So(body["message"], ShouldEqual, "Match is disputed")
			})
		})

		Convey("When the body has unknown fields", func() {
			code, body := e.do(http.MethodPost, "/v1/matches/find", capA, map[string]any{"team": a.ID})
			So(code, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, "bad_request")
		})

		Convey("When the team id is missing", func() {
			code, body := e.do(http.MethodPost, "/v1/matches/find", capA, map[string]any{})
			So(code, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, "validation")
		})

		Convey("When a match does not exist", func() {
			code, body := e.do(http.MethodGet, "/v1/matches/nope", capA, nil)
			So(code, ShouldEqual, http.StatusNotFound)
			So(body["message"], ShouldEqual, "Match not found")
		})

		Convey("When bravo is unavailable and alpha searches", func() {
			code, _ := e.do(http.MethodPut, "/v1/teams/"+b.ID+"/availability", capB, map[string]any{"available": false})
			So(code, ShouldEqual, http.StatusOK)

			code, body := e.do(http.MethodPost, "/v1/matches/find", capA, map[string]any{"team_id": a.ID})

			Convey("Then no opponent is a normal answer", func() {
				So(code, ShouldEqual, http.StatusOK)
				So(body["matched"], ShouldEqual, false)
				So(body["reason"], ShouldNotBeBlank)
			})
		})
	})
}

func TestTeamRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		e := newEnv()
		Reset(e.close)
		a := e.addTeam("alpha", 0)
		capA := e.token(a.CaptainID, model.RolePlayer)
		admin := e.token("admin-1", model.RoleAdmin)

		Convey("Then the captain can queue the team", func() {
			code, body := e.do(http.MethodPut, "/v1/teams/"+a.ID+"/queue", capA, map[string]any{"queued": true})
			So(code, ShouldEqual, http.StatusOK)
			So(body["queued"], ShouldEqual, true)
		})

		Convey("Then a player cannot reset a team", func() {
			code, _ := e.do(http.MethodPost, "/v1/admin/teams/"+a.ID+"/reset", capA, nil)
			So(code, ShouldEqual, http.StatusForbidden)
		})

		Convey("Then an admin brings an unavailable team back", func() {
			code, _ := e.do(http.MethodPut, "/v1/teams/"+a.ID+"/availability", capA, map[string]any{"available": false})
			So(code, ShouldEqual, http.StatusOK)

			code, body := e.do(http.MethodPost, "/v1/admin/teams/"+a.ID+"/reset", admin, nil)
			So(code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, string(model.TeamAvailable))
		})

		Convey("Then an invalid history limit is rejected", func() {
			code, _ := e.do(http.MethodGet, "/v1/teams/"+a.ID+"/matches?limit=zero", capA, nil)
			So(code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then stats are served without a token", func() {
			code, body := e.do(http.MethodGet, "/stats", "", nil)
			So(code, ShouldEqual, http.StatusOK)
			So(body["teams_by_status"].(map[string]any)[string(model.TeamAvailable)], ShouldEqual, 1.0)
		})

		Convey("Then metrics are served on /healthz", func() {
			resp, err := http.Get(e.srv.URL + "/healthz")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}

func TestWebsocketRoute(t *testing.T) {
	Convey("Given a started service and a subscribed captain", t, func() {
		e := newEnv()
		Reset(e.close)
		So(e.svc.Start(context.Background()), ShouldBeNil)
		a := e.addTeam("alpha", 10)
		b := e.addTeam("bravo", 12)

		url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/ws?token=" + e.token(b.CaptainID, model.RolePlayer)
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		_ = resp.Body.Close()
		defer func() { _ = conn.Close() }()

		deadline := time.Now().Add(2 * time.Second)
		for e.hub.ConnectionsFor(b.CaptainID) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		Convey("When alpha's captain creates a match", func() {
			code, _ := e.do(http.MethodPost, "/v1/matches/find", e.token(a.CaptainID, model.RolePlayer), map[string]any{"team_id": a.ID})
			So(code, ShouldEqual, http.StatusCreated)

			Convey("Then bravo's captain is told over the socket", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				var msg notify.Message
				So(conn.ReadJSON(&msg), ShouldBeNil)
				So(msg.Type, ShouldEqual, model.KindMatchCreated)
				So(msg.Payload.TeamID, ShouldNotBeBlank)
			})
		})
	})

	Convey("Given a websocket request without a token", t, func() {
		e := newEnv()
		Reset(e.close)

		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.srv.URL, "http")+"/v1/ws", nil)

		Convey("Then the upgrade is refused", func() {
			So(err, ShouldNotBeNil)
			So(resp, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})
	})
}
