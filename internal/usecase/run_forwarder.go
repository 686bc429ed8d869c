package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// closeTimeout bounds the best-effort flush after a failure.
const closeTimeout = 10 * time.Second

// PacketHandler is the forwarding side of the read loop.
type PacketHandler interface {
	HandlePacket(ctx context.Context, pkt *domain.Packet) error
	Close(ctx context.Context) error
}

// ForwardAll reads packets from source until it is exhausted and hands each to
// handler. The handler is always closed before returning. A decode failure
// ends the run; there is no resynchronization.
func ForwardAll(ctx context.Context, source domain.PacketSource, handler PacketHandler, logger *slog.Logger) error {
	for {
		pkt, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				closeQuietly(handler, logger)
				return ctx.Err()
			}
			closeQuietly(handler, logger)
			if domain.IsClassified(err) {
				return fmt.Errorf("failed to read CTF packet stream: %w", err)
			}
			return fmt.Errorf("%w: failed to parse CTF packet from stream: %w", domain.ErrDecode, err)
		}

		if err := handler.HandlePacket(ctx, pkt); err != nil {
			closeQuietly(handler, logger)
			return err
		}
	}

	if err := handler.Close(ctx); err != nil {
		return err
	}
	logger.Info("finished")
	return nil
}

func closeQuietly(handler PacketHandler, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := handler.Close(ctx); err != nil {
		logger.Warn("failed to close backend session", "error", err)
	}
}
