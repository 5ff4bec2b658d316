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

	"github.com/kirillkom/inbox-triage/internal/bootstrap"
	"github.com/kirillkom/inbox-triage/internal/config"
	"github.com/kirillkom/inbox-triage/internal/observability/logging"
	"github.com/kirillkom/inbox-triage/internal/observability/metrics"
)

const serviceName = "triage-worker"

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
	if app.Queue == nil {
		log.Fatal().Msg("worker requires NATS_URL")
	}

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("worker_metrics_server_failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("subject", cfg.NATSSubject).Msg("worker_subscribed")
	handler := newBackfillHandler(app.Backfill, workerMetrics, 5*time.Minute)
	if err := app.Queue.SubscribeBackfillRequested(ctx, handler); err != nil {
		log.Error().Err(err).Msg("worker_subscribe_failed")
	}
}
