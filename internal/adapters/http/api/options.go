package api

import "github.com/okian/padel/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithSubscriber enables the websocket endpoint.
func WithSubscriber(sub Subscriber) Option {
	return func(s *Server) { s.hub = sub }
}
