package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/bootstrap"
	"github.com/kirillkom/inbox-triage/internal/config"
	"github.com/kirillkom/inbox-triage/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*services, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		logging.InitWithWriter(os.Stderr, "triagectl", cfg.LogLevel)
		app, err := bootstrap.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc := &services{search: app.Search, backfill: app.Backfill, close: app.Close}
		if app.Queue != nil {
			svc.queue = app.Queue
		}
		return svc, nil
	}

	if err := newRootCmd(open, os.Stdout).ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("triagectl_failed")
		os.Exit(1)
	}
}
