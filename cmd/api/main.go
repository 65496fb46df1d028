// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/bestsellers/internal/app"
	"github.com/briangreenhill/bestsellers/internal/config"
	"github.com/briangreenhill/bestsellers/internal/http/routes"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("api stopped")
	}
}

// run serves the API until ctx ends.
func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Logger
	logger := app.NewLogger(cfg, stdout)

	// Cache
	store, closeStore, err := app.NewStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cache %s: %w", cfg.Cache.Driver, err)
	}
	defer closeStore()

	gw, err := app.NewGateway(cfg, store, logger)
	if err != nil {
		return err
	}

	// Router / server
	s := routes.New(routes.ServerOptions{Gateway: gw, Logger: logger})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.NYT.Timeout*time.Duration(cfg.NYT.Attempts) + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("cache", cfg.Cache.Driver).Dur("ttl", cfg.TTL()).Msg("starting api")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info().Msg("stopped")
	return nil
}
