package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	mcpadapter "github.com/kirillkom/inbox-triage/internal/adapters/mcp"
	"github.com/kirillkom/inbox-triage/internal/bootstrap"
	"github.com/kirillkom/inbox-triage/internal/config"
	"github.com/kirillkom/inbox-triage/internal/observability/logging"
)

const serviceName = "triage-mcp"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.InitWithWriter(os.Stderr, serviceName, "info")
		log.Fatal().Err(err).Msg("config_load_failed")
	}
	// stdout carries the protocol.
	logging.InitWithWriter(os.Stderr, serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap_failed")
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Search, app.Backfill, cfg.MCPUserID).MCPServer("inbox-triage", "1.0.0")
	log.Info().Str("default_user", cfg.MCPUserID).Msg("mcp_stdio_serving")
	if err := server.ServeStdio(srv); err != nil {
		log.Error().Err(err).Msg("mcp_server_failed")
	}
}
