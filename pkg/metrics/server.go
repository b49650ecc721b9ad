package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
)

// Server exposes /metrics and /health over HTTP. Any other path is a 404.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a metrics server bound to the given address.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/health", HealthHandler())

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	log.WithComponent("metrics").Info().
		Str("addr", s.httpServer.Addr).
		Msg("metrics server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
