package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/padel/internal/domain/model"
)

const maxHistoryLimit = 100

type queueRequest struct {
	Queued bool `json:"queued"`
}

type availabilityRequest struct {
	Available bool       `json:"available"`
	Until     *time.Time `json:"until"`
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	t, err := s.svc.GetTeam(r.Context(), actor, r.PathValue("id"))
	s.respondTeam(w, r, t, err)
}

// handleTeamMatches handles GET /v1/teams/{id}/matches?limit=N.
func (s *Server) handleTeamMatches(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, maxHistoryLimit))
			return
		}
		limit = n
	}
	ms, err := s.svc.ListTeamMatches(r.Context(), actor, r.PathValue("id"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if ms == nil {
		ms = []model.Match{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	var req queueRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	t, err := s.svc.SetQueued(r.Context(), actor, r.PathValue("id"), req.Queued)
	s.respondTeam(w, r, t, err)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	var req availabilityRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	t, err := s.svc.SetAvailability(r.Context(), actor, r.PathValue("id"), req.Available, req.Until)
	s.respondTeam(w, r, t, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	t, err := s.svc.ResetTeam(r.Context(), actor, r.PathValue("id"))
	s.respondTeam(w, r, t, err)
}

func (s *Server) respondTeam(w http.ResponseWriter, r *http.Request, t model.Team, err error) { //nolint:gocritic // hugeParam: response value
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
