package api

import (
	"net/http"

	"github.com/okian/padel/internal/domain/model"
	"github.com/okian/padel/pkg/logger"
)

// handleWS upgrades GET /v1/ws and subscribes the caller to their
// notifications.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, actor model.Identity) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", ErrUnavailable)
		return
	}
	if err := s.hub.Serve(w, r, actor.UserID); err != nil {
		s.logger.Warn(r.Context(), "websocket subscription failed",
			logger.String("user_id", actor.UserID),
			logger.Error(err),
		)
	}
}
