package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	httpadapter "github.com/kirillkom/inbox-triage/internal/adapters/http"
	"github.com/kirillkom/inbox-triage/internal/bootstrap"
	"github.com/kirillkom/inbox-triage/internal/config"
	"github.com/kirillkom/inbox-triage/internal/observability/logging"
	"github.com/kirillkom/inbox-triage/internal/observability/metrics"
)

const serviceName = "triage-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(serviceName, "info")
		log.Fatal().Err(err).Msg("config_load_failed")
	}
	logging.Init(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap_failed")
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, metrics.NewHTTPServerMetrics(serviceName), app.Search, app.Backfill, app.Buckets, app.Messages, app.Insights)
	if err != nil {
		log.Fatal().Err(err).Msg("router_init_failed")
	}
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.APIPort).Msg("api_listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api_server_failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api_shutdown_failed")
	}
}
