// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/go-core-stack/realtime-relay/pkg/config"
	"github.com/go-core-stack/realtime-relay/pkg/server"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	flags := pflag.NewFlagSet("realtime-relay", pflag.ExitOnError)
	listenAddr := flags.String("listen", cfg.ListenAddr, "address to listen on")
	logLevel := flags.String("log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])
	cfg.ListenAddr = *listenAddr
	cfg.LogLevel = *logLevel

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Level(level)

	for _, name := range cfg.MissingSecrets() {
		log.Warn().Str("env", name).Msg("missing or placeholder env var")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.New(cfg),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("forward_url", cfg.ForwardURL.String()).
			Str("realtime_url", cfg.RealtimeURL.String()).
			Msg("starting realtime relay")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("relay server exited unexpectedly")
		}
	}()

	waitForShutdown(context.Background(), srv, cfg.GracefulShutdownTimeout)
}

func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	log.Info().Msg("shutting down realtime relay")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Shutdown does not wait for in-flight event streams past the timeout.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("relay stopped")
}
