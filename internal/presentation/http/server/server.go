// Package server runs the tracking API over net/http.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/container"
	"github.com/AtRiskMedia/hugtrack-go/internal/presentation/http/routes"
)

const defaultShutdownTimeout = 30 * time.Second

// Options holds the listener address and connection timeouts.
type Options struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the gin router built from the container.
type Server struct {
	httpServer      *http.Server
	container       *container.Container
	shutdownTimeout time.Duration
}

// New builds the router and the listener for it.
func New(opts Options, container *container.Container) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + opts.Port,
			Handler:      routes.SetupRoutes(container),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		container:       container,
		shutdownTimeout: opts.ShutdownTimeout,
	}
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.container.Logger.HTTP().Info("Listening for tracking requests", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains open requests for at most the shutdown timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.container.Logger.Shutdown().Info("Draining HTTP requests", "timeout", s.shutdownTimeout)
	return s.httpServer.Shutdown(ctx)
}
