package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/V4T54L/ctf-relay/internal/adapter/ingest/nats"
	"github.com/V4T54L/ctf-relay/internal/adapter/ingest/postgres"
	"github.com/V4T54L/ctf-relay/internal/adapter/ingest/redis"
	"github.com/V4T54L/ctf-relay/internal/adapter/ingest/segment"
	"github.com/V4T54L/ctf-relay/internal/domain"
)

// OpenSink connects to the backend named by rawURL. The scheme selects the
// backend: redis, postgres (or postgresql), nats, or file.
func OpenSink(ctx context.Context, rawURL string, logger *slog.Logger) (Sink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid backend URL '%s': %w", domain.ErrConfig, rawURL, err)
	}

	var sink Sink
	switch u.Scheme {
	case "redis", "rediss":
		sink, err = redis.Open(ctx, rawURL, logger)
	case "postgres", "postgresql":
		sink, err = postgres.Open(ctx, rawURL, logger)
	case "nats", "tls":
		sink, err = nats.Open(ctx, rawURL, logger)
	case "file":
		dir := u.Path
		if u.Host != "" && u.Host != "localhost" {
			// file://./data parses "." as the host.
			dir = filepath.Join(u.Host, u.Path)
		}
		sink, err = segment.Open(dir, segment.DefaultMaxSegmentSize, segment.DefaultMaxTotalSize, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme '%s'", domain.ErrConfig, u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s backend: %w", domain.ErrBackend, u.Scheme, err)
	}
	return sink, nil
}

// Open connects to the backend named by rawURL and returns a client for it.
func Open(ctx context.Context, rawURL string, opts Options, logger *slog.Logger) (*Client, error) {
	sink, err := OpenSink(ctx, rawURL, logger)
	if err != nil {
		return nil, err
	}
	return NewClient(sink, opts, logger), nil
}
