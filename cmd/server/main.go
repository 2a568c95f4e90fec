package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "wetty: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
