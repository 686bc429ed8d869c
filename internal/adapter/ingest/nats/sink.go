package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// SubjectPrefix is the root of every subject the sink publishes to.
const SubjectPrefix = "ctf_relay"

const flushTimeout = 10 * time.Second

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Sink publishes each record as a JSON message on
// ctf_relay.<kind>.<timeline id>.
type Sink struct {
	conn   Publisher
	logger *slog.Logger
}

// NewSink creates a Sink on an existing connection.
func NewSink(conn Publisher, logger *slog.Logger) *Sink {
	return &Sink{conn: conn, logger: logger.With("component", "nats_sink")}
}

// Open connects to the NATS server at rawURL.
func Open(ctx context.Context, rawURL string, logger *slog.Logger) (*Sink, error) {
	opts := []nats.Option{
		nats.Name("ctf-relay"),
		nats.Timeout(10 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from nats", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to nats", "url", c.ConnectedUrl())
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	conn, err := nats.Connect(rawURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	logger.Info("connected to nats", "url", conn.ConnectedUrl())
	return NewSink(conn, logger), nil
}

// Subject returns the subject a record is published on.
func Subject(r *domain.Record) string {
	return SubjectPrefix + "." + string(r.Kind) + "." + r.TimelineID.String()
}

// Write publishes every record and waits for the server to acknowledge them.
func (s *Sink) Write(ctx context.Context, records []domain.Record) error {
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("failed to marshal record '%s': %w", records[i].Name, err)
		}
		if err := s.conn.Publish(Subject(&records[i]), data); err != nil {
			return fmt.Errorf("failed to publish record '%s': %w", records[i].Name, err)
		}
	}
	if _, ok := ctx.Deadline(); !ok {
		// FlushWithContext rejects contexts without a deadline.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush nats connection: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.conn.Close()
	return nil
}
