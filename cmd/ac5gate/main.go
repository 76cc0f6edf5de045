package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wraithcore/ac5gate/internal/bootstrap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		root     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "ac5gate",
		Short: "Runs every server instance discovered under --root",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: parseLogLevel(logLevel),
			}))

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				logger.Info("shutting down", "signal", sig)
				cancel()
			}()

			if err := run(ctx, root, logger); err != nil {
				return fmt.Errorf("ac5gate: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "./instances", "directory holding one subdirectory per server instance")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")

	return cmd
}

func run(ctx context.Context, root string, logger *slog.Logger) error {
	logger.Info("starting ac5gate", "root", root)
	return bootstrap.RunAll(ctx, root, logger)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
