package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"trade-settlement-go/internal/config"

	"go.uber.org/zap"
)

// Server runs the HTTP interface of the settlement service.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a new Server serving handler on the configured port.
func NewServer(cfg config.Server, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: handler,
		},
		logger: logger.Named("api-server"),
	}
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
