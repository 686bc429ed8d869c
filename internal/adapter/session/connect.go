package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/ctf-relay/internal/adapter/metrics"
	"github.com/V4T54L/ctf-relay/internal/domain"
)

// retrySlices is the number of per-attempt slices a connect budget is split into.
const retrySlices = 4

// Dialer opens TCP connections to a remote, optionally retrying within a budget.
type Dialer struct {
	logger  *slog.Logger
	metrics *metrics.ForwardMetrics
	// retryInterval paces attempts so immediate refusals do not spin.
	retryInterval time.Duration
}

// NewDialer creates a Dialer. m may be nil.
func NewDialer(logger *slog.Logger, m *metrics.ForwardMetrics, retryInterval time.Duration) *Dialer {
	return &Dialer{
		logger:        logger.With("component", "dialer"),
		metrics:       m,
		retryInterval: retryInterval,
	}
}

// Connect dials remote. With a zero timeout it makes a single attempt. Otherwise
// it keeps making attempts, each bounded by a quarter of timeout, until timeout
// has elapsed, then makes one final attempt without a bound and returns its result.
func (d *Dialer) Connect(ctx context.Context, remote netip.AddrPort, timeout time.Duration) (*net.TCPConn, error) {
	if timeout <= 0 {
		d.logger.Info("connecting to remote", "remote", remote)
		return d.dial(ctx, remote, 0)
	}

	d.logger.Info("connecting to remote", "remote", remote, "timeout", timeout)
	slice := timeout / retrySlices
	limit := rate.Inf
	if d.retryInterval > 0 {
		limit = rate.Every(d.retryInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	start := time.Now()
	for attempt := 1; time.Since(start) <= timeout; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrConnect, err)
		}
		conn, err := d.dial(ctx, remote, slice)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		d.logger.Debug("connection attempt failed", "attempt", attempt, "error", err)
	}

	return d.dial(ctx, remote, 0)
}

func (d *Dialer) dial(ctx context.Context, remote netip.AddrPort, bound time.Duration) (*net.TCPConn, error) {
	dialer := net.Dialer{Timeout: bound}
	conn, err := dialer.DialContext(ctx, "tcp", remote.String())
	d.metrics.ConnectAttempt(err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", domain.ErrConnect, remote, err)
	}
	return conn.(*net.TCPConn), nil
}
