// Package server runs the HTTP API with production timeouts and graceful
// shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds server configuration
type Config struct {
	// Address is the listen address, e.g. "localhost:8080"
	Address string

	Handler http.Handler

	TLSConfig *TLSConfig

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int

	// ShutdownTimeout bounds how long Run waits for in-flight requests
	ShutdownTimeout time.Duration

	Logger *zap.Logger
}

// TLSConfig holds certificate paths for HTTPS
type TLSConfig struct {
	CertFile   string
	KeyFile    string
	MinVersion uint16 // default TLS 1.2
}

// DefaultConfig returns production timeouts. WriteTimeout is zero because the
// watch endpoint holds connections open indefinitely.
func DefaultConfig(handler http.Handler) *Config {
	return &Config{
		Address:           "localhost:8080",
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Server is an HTTP server
type Server struct {
	httpServer *http.Server
	config     *Config
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	hooks    []func(context.Context) error
}

// New creates a server
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           config.Handler,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
	if config.TLSConfig != nil {
		minVersion := config.TLSConfig.MinVersion
		if minVersion == 0 {
			minVersion = tls.VersionTLS12
		}
		httpServer.TLSConfig = &tls.Config{MinVersion: minVersion, NextProtos: []string{"h2", "http/1.1"}}
	}

	return &Server{httpServer: httpServer, config: config, logger: logger}, nil
}

// OnShutdown registers a hook run after the server stops accepting requests
func (s *Server) OnShutdown(hook func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Listen binds the listen address. Addr reports the bound address afterwards,
// which matters when the configured port is 0.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	bound := s.listener != nil
	s.mu.Unlock()
	if !bound {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		var err error
		if tc := s.config.TLSConfig; tc != nil {
			err = s.httpServer.ServeTLS(ln, tc.CertFile, tc.KeyFile)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("timeout", s.config.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown stops accepting requests, waits for in-flight ones, then runs the
// shutdown hooks
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		err = fmt.Errorf("server shutdown: %w", err)
	}

	s.mu.Lock()
	hooks := append([]func(context.Context) error(nil), s.hooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		if hookErr := hook(ctx); hookErr != nil {
			s.logger.Warn("shutdown hook failed", zap.Error(hookErr))
		}
	}
	return err
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}
