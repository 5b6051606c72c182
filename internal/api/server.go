// Navaar - Telegram / YouTube Music / Spotify Playlist Synchronization
// Copyright 2026 Navaar Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/navaar/navaar

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/navaar/navaar/internal/config"
	"github.com/navaar/navaar/internal/logging"
)

// Server runs the observability HTTP server. Implements suture.Service; the
// http.Server is built fresh on every Serve call so supervisor restarts get
// a usable listener.
type Server struct {
	addr    string
	timeout time.Duration
	handler http.Handler
}

// NewServer creates a server from the server config section.
func NewServer(cfg *config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		timeout: cfg.Timeout,
		handler: handler,
	}
}

// Serve listens until the context is canceled, then shuts down gracefully
// within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout,
		IdleTimeout:       2 * s.timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP server shutdown incomplete")
		}
		<-errCh
		logging.Info().Msg("HTTP server stopped")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
