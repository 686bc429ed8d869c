package usecase

import (
	"context"
	"log/slog"
	"time"
)

// DefaultShutdownGrace is how long Supervise waits for a cancelled unit to return.
const DefaultShutdownGrace = 5 * time.Second

// Supervise runs unit in its own goroutine and races its completion against
// cancellation of ctx. When ctx is cancelled first (an interrupt), the unit is
// cancelled and Supervise returns nil once the unit exits or grace elapses.
// Otherwise the unit's own result is returned.
func Supervise(ctx context.Context, logger *slog.Logger, grace time.Duration, unit func(ctx context.Context) error) error {
	unitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- unit(unitCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Debug("user signaled shutdown")
		cancel()
		select {
		case <-done:
		case <-time.After(grace):
			logger.Warn("forwarder did not stop within the shutdown grace period", "grace", grace)
		}
		return nil
	}
}
