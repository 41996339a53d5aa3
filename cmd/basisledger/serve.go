package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sproutfi/basisledger/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the reconciliation engine over HTTP, flushing the pending-sync queue on startup.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	// Startup flush: replay whatever the last run failed to push.
	flushCtx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	stats, err := a.queue.Flush(flushCtx)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("startup flush failed")
	} else if stats.Attempted > 0 {
		log.Info().Int("succeeded", stats.Succeeded).Int("failed", stats.Failed).Msg("startup flush done")
	}

	server := &http.Server{
		Addr:              a.config.Server.Listen,
		Handler:           httpapi.NewServer(a.engine, a.queue, a.metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", a.config.Server.Listen).Msg("HTTP API listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
