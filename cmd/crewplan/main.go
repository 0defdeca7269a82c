package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/adapter/cli/booking"
	"github.com/felixgeelhaar/crewplan/adapter/cli/mcp"
	"github.com/felixgeelhaar/crewplan/adapter/cli/participant"
	"github.com/felixgeelhaar/crewplan/adapter/cli/slot"
	"github.com/felixgeelhaar/crewplan/internal/app"
	mcpinternal "github.com/felixgeelhaar/crewplan/internal/mcp"
	"github.com/felixgeelhaar/crewplan/pkg/config"
	"github.com/joho/godotenv"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli.SetLogger(newLogger(slog.LevelWarn))
	cli.SetBootstrap(bootstrap)

	cli.AddCommand(participant.Cmd)
	cli.AddCommand(slot.Cmd)
	for _, cmd := range booking.Commands() {
		cli.AddCommand(cmd)
	}
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}

// bootstrap runs after flag parsing so --config and --verbose apply.
func bootstrap(ctx context.Context) (*cli.App, error) {
	if path := cli.ConfigFile(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if cli.Verbose() {
		level = slog.LevelDebug
	}
	logger := newLogger(level)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	cliApp, err := mcpinternal.NewCLIApp(container)
	if err != nil {
		container.Close()
		return nil, err
	}
	// Commands flush the outbox after each write; the worker process owns
	// the polling processor.
	return cliApp, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
