package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/recipeforge/recipeforge/cmd/forge/commands"
	"github.com/recipeforge/recipeforge/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// Context cancels on interrupt so an in-flight run stops cleanly
	// between targets.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(commands.ExitCode(err))
	}
}

func setupLogging() {
	cfg := telemetry.DefaultLoggingConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	if err := telemetry.SetupGlobal(cfg); err != nil {
		log.Warn().Err(err).Msg("Falling back to default logging configuration")
	}
}
