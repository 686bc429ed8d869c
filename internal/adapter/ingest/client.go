// Package ingest implements domain.IngestClient on top of pluggable record
// sinks: Redis Streams, PostgreSQL, NATS subjects and local segment files.
//
// The client tracks the active timeline and buffers records; a sink only has
// to persist a batch of records in order.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// DefaultBatchSize is the number of records buffered before an automatic flush.
const DefaultBatchSize = 1024

// Sink persists batches of records.
type Sink interface {
	// Write persists records in order. A batch is written completely or not at
	// all. The slice is reused after Write returns.
	Write(ctx context.Context, records []domain.Record) error
	Close() error
}

// Options configures a Client.
type Options struct {
	// BatchSize is the buffer size that triggers an automatic flush.
	BatchSize int
	// RunID tags every record written during this process run.
	RunID string
}

// Client buffers timeline and event records and hands them to a Sink.
// It is not safe for concurrent use, except for Status.
type Client struct {
	sink      Sink
	logger    *slog.Logger
	batchSize int
	runID     string
	now       func() time.Time

	active  *domain.TimelineID
	pending []domain.Record

	received atomic.Uint64
	written  atomic.Uint64
}

// NewClient creates a Client writing to sink.
func NewClient(sink Sink, opts Options, logger *slog.Logger) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Client{
		sink:      sink,
		logger:    logger.With("component", "ingest_client"),
		batchSize: opts.BatchSize,
		runID:     opts.RunID,
		now:       time.Now,
		pending:   make([]domain.Record, 0, opts.BatchSize),
	}
}

func (c *Client) SwitchTimeline(ctx context.Context, id domain.TimelineID) error {
	c.active = &id
	return nil
}

func (c *Client) SendTimelineAttrs(ctx context.Context, name string, attrs []domain.Attr) error {
	return c.add(ctx, domain.RecordTimeline, name, 0, attrs)
}

func (c *Client) SendEvent(ctx context.Context, name string, ordering uint64, attrs []domain.Attr) error {
	c.received.Add(1)
	return c.add(ctx, domain.RecordEvent, name, ordering, attrs)
}

func (c *Client) add(ctx context.Context, kind domain.RecordKind, name string, ordering uint64, attrs []domain.Attr) error {
	if c.active == nil {
		return fmt.Errorf("%w: no active timeline", domain.ErrBackend)
	}
	c.pending = append(c.pending, domain.Record{
		Kind:       kind,
		TimelineID: *c.active,
		RunID:      c.runID,
		Name:       name,
		Ordering:   ordering,
		Attrs:      attrs,
		ReceivedAt: c.now().UTC(),
	})
	if len(c.pending) >= c.batchSize {
		return c.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered records. On failure the records stay buffered.
func (c *Client) Flush(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}
	if err := c.sink.Write(ctx, c.pending); err != nil {
		return fmt.Errorf("%w: failed to write %d records: %w", domain.ErrBackend, len(c.pending), err)
	}

	var events uint64
	for i := range c.pending {
		if c.pending[i].Kind == domain.RecordEvent {
			events++
		}
	}
	c.written.Add(events)
	c.logger.Debug("flushed records", "records", len(c.pending), "events", events)
	c.pending = c.pending[:0]
	return nil
}

func (c *Client) Status(ctx context.Context) (domain.IngestStatus, error) {
	written := c.written.Load()
	received := c.received.Load()
	return domain.IngestStatus{
		Received: received,
		Written:  written,
		Pending:  received - written,
	}, nil
}

// Close releases the sink. Buffered records that were not flushed are dropped.
func (c *Client) Close() error {
	if n := len(c.pending); n > 0 {
		c.logger.Warn("closing with unflushed records", "records", n)
	}
	return c.sink.Close()
}
