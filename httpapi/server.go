package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clearway/submitonce"
)

// ServerConfig tunes Run.
type ServerConfig struct {
	// Addr is the listen address, required.
	Addr string
	// ShutdownTimeout bounds the drain after the context is canceled.
	// Zero means 10 seconds.
	ShutdownTimeout time.Duration
}

// Run serves handler on cfg.Addr until ctx is canceled, then shuts the
// server down, waiting up to cfg.ShutdownTimeout for in-flight requests. A
// clean drain returns nil.
func Run(ctx context.Context, logger submitonce.Logger, cfg ServerConfig, handler http.Handler) error {
	if cfg.Addr == "" {
		return errors.New("submitonce httpapi: listen address is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = submitonce.NopLogger{}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("submitonce httpapi: shutdown: %w", err)
		}
		logger.Info("http server stopped")

		return nil
	case err := <-errCh:
		return err
	}
}
