package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

const (
	// EventStreamKey is the stream every event record is appended to.
	EventStreamKey = "ctf_relay:events"
	// TimelineKeyPrefix prefixes the hash holding a timeline's attributes.
	TimelineKeyPrefix = "ctf_relay:timeline:"
)

// Sink appends records to Redis Streams. Event records go to EventStreamKey;
// timeline attribute records are stored in a per-timeline hash and mirrored to
// the stream so consumers see them in order.
type Sink struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewSink creates a Sink on an existing client.
func NewSink(client redis.UniversalClient, logger *slog.Logger) *Sink {
	return &Sink{client: client, logger: logger.With("component", "redis_sink")}
}

// Open connects to the Redis server at rawURL.
func Open(ctx context.Context, rawURL string, logger *slog.Logger) (*Sink, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("connected to redis", "addr", opts.Addr)
	return NewSink(client, logger), nil
}

// Write appends records in a single MULTI/EXEC transaction.
func (s *Sink) Write(ctx context.Context, records []domain.Record) error {
	pipe := s.client.TxPipeline()
	for i := range records {
		values, err := recordValues(&records[i])
		if err != nil {
			return err
		}
		if records[i].Kind == domain.RecordTimeline {
			pipe.HSet(ctx, TimelineKey(records[i].TimelineID), values)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: EventStreamKey,
			Values: values,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		if isNetworkError(err) {
			s.logger.Error("redis connection lost during write", "error", err)
		}
		return fmt.Errorf("failed to execute redis pipeline: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}

// TimelineKey returns the hash key holding a timeline's attributes.
func TimelineKey(id domain.TimelineID) string {
	return TimelineKeyPrefix + id.String()
}

func recordValues(r *domain.Record) (map[string]any, error) {
	attrs, err := json.Marshal(r.Attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attrs of '%s': %w", r.Name, err)
	}
	return map[string]any{
		"kind":        string(r.Kind),
		"timeline_id": r.TimelineID.String(),
		"run_id":      r.RunID,
		"name":        r.Name,
		"ordering":    r.Ordering,
		"attrs":       attrs,
		"received_at": r.ReceivedAt.UnixNano(),
	}, nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}
