package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/recoverly/recoverly/internal/app"
	"github.com/recoverly/recoverly/internal/cli"
	"github.com/recoverly/recoverly/internal/config"
	"github.com/recoverly/recoverly/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return app.New(ctx, cfg, logging.NewWriter(os.Stderr, cfg.LogLevel))
	}

	if err := cli.NewRootCommand(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "recoveryctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
