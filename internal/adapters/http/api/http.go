// Package api exposes the service over HTTP and websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	service "github.com/okian/padel/internal/app"
	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Service is the part of the application the handlers call.
type Service interface {
	FindOpponentAndCreateMatch(ctx context.Context, actor model.Identity, req service.FindRequest) (model.Match, error)
	GetMatch(ctx context.Context, actor model.Identity, matchID string) (model.Match, error)
	AcceptMatch(ctx context.Context, actor model.Identity, matchID string) (model.Match, error)
	ScheduleMatch(ctx context.Context, actor model.Identity, matchID string, at *time.Time) (model.Match, error)
	SubmitResult(ctx context.Context, actor model.Identity, matchID string, outcome model.Outcome, score string) (model.Match, error)
	ConfirmMatch(ctx context.Context, actor model.Identity, matchID string) error
	DisputeMatch(ctx context.Context, actor model.Identity, matchID, reason string) (model.Dispute, error)

	GetTeam(ctx context.Context, actor model.Identity, teamID string) (model.Team, error)
	ListTeamMatches(ctx context.Context, actor model.Identity, teamID string, limit int) ([]model.Match, error)
	SetQueued(ctx context.Context, actor model.Identity, teamID string, queued bool) (model.Team, error)
	SetAvailability(ctx context.Context, actor model.Identity, teamID string, available bool, until *time.Time) (model.Team, error)
	ResetTeam(ctx context.Context, admin model.Identity, teamID string) (model.Team, error)

	StatsProvider
}

// Subscriber attaches a websocket connection to a user.
type Subscriber interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	svc    Service
	auth   *Authenticator
	hub    Subscriber
	logger logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(svc Service, auth *Authenticator, opts ...Option) *Server {
	s := &Server{
		svc:           svc,
		auth:          auth,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(svc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// authed is a handler that runs with a verified identity.
type authed func(w http.ResponseWriter, r *http.Request, actor model.Identity)

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/matches/find", s.route("find_match", s.handleFind))
	mux.HandleFunc("GET /v1/matches/{id}", s.route("get_match", s.handleGetMatch))
	mux.HandleFunc("POST /v1/matches/{id}/accept", s.route("accept_match", s.handleAccept))
	mux.HandleFunc("POST /v1/matches/{id}/schedule", s.route("schedule_match", s.handleSchedule))
	mux.HandleFunc("POST /v1/matches/{id}/result", s.route("submit_result", s.handleResult))
	mux.HandleFunc("POST /v1/matches/{id}/confirm", s.route("confirm_match", s.handleConfirm))
	mux.HandleFunc("POST /v1/matches/{id}/dispute", s.route("dispute_match", s.handleDispute))

	mux.HandleFunc("GET /v1/teams/{id}", s.route("get_team", s.handleGetTeam))
	mux.HandleFunc("GET /v1/teams/{id}/matches", s.route("team_matches", s.handleTeamMatches))
	mux.HandleFunc("PUT /v1/teams/{id}/queue", s.route("set_queued", s.handleQueue))
	mux.HandleFunc("PUT /v1/teams/{id}/availability", s.route("set_availability", s.handleAvailability))
	mux.HandleFunc("POST /v1/admin/teams/{id}/reset", s.route("reset_team", s.handleReset))

	mux.HandleFunc("GET /v1/ws", s.route("ws", s.handleWS))
}

// route authenticates the request and records metrics for endpoint.
func (s *Server) route(endpoint string, h authed) http.HandlerFunc {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := IdentityFrom(r.Context())
		h(w, r, actor)
	})
	return MetricsMiddleware(s.auth.Middleware(inner).ServeHTTP, endpoint)
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError answers with the display reason of a service error.
// Internal details stay in the log.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{
		Code:      code,
		Message:   service.ReasonOf(err),
		Retryable: retryable(err),
	})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
