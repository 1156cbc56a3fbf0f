// Package server owns the process lifecycle: it runs the admin HTTP
// listener and drains the bridge's workers when a stop signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc drains one component. It must respect ctx's deadline.
type ShutdownFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Server runs the HTTP listener and coordinates shutdown of every
// component registered with OnShutdown.
type Server struct {
	httpServer    *http.Server
	drainDeadline time.Duration
	logger        *slog.Logger

	mu    sync.Mutex
	hooks []hook
}

func New(handler http.Handler, port int, readTimeout, writeTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		drainDeadline: shutdownTimeout,
		logger:        logger,
	}
}

// OnShutdown registers a drain hook. Hooks run LIFO after the HTTP
// listener has stopped, so register the component that must stop LAST
// first (the broker connection before the workers that publish to it).
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// Run serves until SIGINT/SIGTERM, then drains. A listener error is
// returned immediately without running the drain hooks.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http listener starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listener: %w", err)
	case sig := <-stop:
		s.logger.Info("stop signal received", "signal", sig.String())
		return s.drain()
	}
}

// drain stops the HTTP listener, then runs the hooks in reverse
// registration order under one shared deadline. Every hook runs even
// if an earlier one fails.
func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.drainDeadline)
	defer cancel()

	s.httpServer.SetKeepAlivesEnabled(false)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("http listener shutdown", "error", err)
	} else {
		s.logger.Info("http listener stopped")
	}

	s.mu.Lock()
	hooks := s.hooks
	s.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		s.logger.Info("draining", "component", h.name)
		if err := h.fn(ctx); err != nil {
			s.logger.Error("drain failed", "component", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		s.logger.Info("drained", "component", h.name)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("bridge stopped")
	return nil
}

// Addr returns the HTTP listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
