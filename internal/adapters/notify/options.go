package notify

import (
	"net/http"

	"github.com/okian/padel/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithSendBuffer sets the per-connection outbound buffer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin sets the origin check used during the upgrade.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// WithOnConnect sets a callback run in its own goroutine after a user
// connects. The server uses it to push that user's backlog.
func WithOnConnect(fn func(userID string)) Option {
	return func(h *Hub) {
		h.onConnect = fn
	}
}
