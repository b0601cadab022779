package api

import (
	"errors"
	"net/http"
	"time"

	service "github.com/okian/padel/internal/app"
	"github.com/okian/padel/internal/domain/model"
)

type findResponse struct {
	Matched bool         `json:"matched"`
	Reason  string       `json:"reason,omitempty"`
	Match   *model.Match `json:"match,omitempty"`
}

type scheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type resultRequest struct {
	Outcome string `json:"outcome"`
	Score   string `json:"score"`
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

// handleFind handles POST /v1/matches/find. Finding nobody is a normal
// outcome and answers 200 with matched=false.
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	var req service.FindRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	m, err := s.svc.FindOpponentAndCreateMatch(r.Context(), actor, req)
	switch {
	case errors.Is(err, service.ErrNoOpponent):
		writeJSON(w, http.StatusOK, findResponse{Matched: false, Reason: service.ReasonOf(err)})
	case err != nil:
		s.writeServiceError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, findResponse{Matched: true, Match: &m})
	}
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	m, err := s.svc.GetMatch(r.Context(), actor, r.PathValue("id"))
	s.respondMatch(w, r, m, err)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	m, err := s.svc.AcceptMatch(r.Context(), actor, r.PathValue("id"))
	s.respondMatch(w, r, m, err)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	var req scheduleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	m, err := s.svc.ScheduleMatch(r.Context(), actor, r.PathValue("id"), req.ScheduledAt)
	s.respondMatch(w, r, m, err)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	var req resultRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	m, err := s.svc.SubmitResult(r.Context(), actor, r.PathValue("id"), model.Outcome(req.Outcome), req.Score)
	s.respondMatch(w, r, m, err)
}

// handleConfirm answers with the completed match.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	id := r.PathValue("id")
	if err := s.svc.ConfirmMatch(r.Context(), actor, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	m, err := s.svc.GetMatch(r.Context(), actor, id)
	s.respondMatch(w, r, m, err)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	var req disputeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	d, err := s.svc.DisputeMatch(r.Context(), actor, r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) respondMatch(w http.ResponseWriter, r *http.Request, m model.Match, err error) { //nolint:gocritic // hugeParam: response value
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
