package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGracePeriod bounds how long Run waits for the runner after a shutdown signal.
const DefaultGracePeriod = 15 * time.Second

type Runner func(ctx context.Context, logger zerolog.Logger) error

// Run starts the runner under a signal-aware context and returns the process exit code.
// On SIGINT/SIGTERM the context is cancelled and the runner gets the grace period
// to drain in-flight work; after that the remaining work is abandoned.
func Run(serviceName string, run Runner) int {
	return RunWithGrace(serviceName, DefaultGracePeriod, run)
}

func RunWithGrace(serviceName string, grace time.Duration, run Runner) int {
	logger := NewLogger(serviceName)
	logger.Info().Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, logger) }()

	select {
	case <-ctx.Done():
		logger.Info().Dur("grace", grace).Msg("shutting down")
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("failed during shutdown")
				return 1
			}
			logger.Info().Msg("stopped")
			return 0
		case <-time.After(grace):
			logger.Warn().Msg("grace period elapsed, abandoning in-flight work")
			return 1
		}
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("failed")
			return 1
		}
		logger.Info().Msg("stopped")
		return 0
	}
}
