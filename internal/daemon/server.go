package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wacrm/wacrm/internal/api"
	"github.com/wacrm/wacrm/internal/config"
	"go.uber.org/zap"
)

// Server manages the HTTP server lifecycle for a workspace daemon.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer binds the API router to the configured address. The daemon serves
// a single workspace, so one listener covers the whole surface.
func NewServer(p Params, cfg *config.Config, logger *zap.Logger, apiServer *api.Server) *Server {
	addr := p.HTTPAddr
	if addr == "" {
		addr = cfg.HTTPAddr
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      apiServer.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // websocket connections are long-lived
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}
}
