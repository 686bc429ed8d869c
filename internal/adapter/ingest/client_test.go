package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/ctf-relay/internal/adapter/ingest/segment"
	"github.com/V4T54L/ctf-relay/internal/domain"
)

type fakeSink struct {
	batches  [][]domain.Record
	writeErr error
	closed   bool
}

func (f *fakeSink) Write(ctx context.Context, records []domain.Record) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.batches = append(f.batches, append([]domain.Record(nil), records...))
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_RecordsCarryActiveTimeline(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient(sink, Options{BatchSize: 100, RunID: "run"}, discardLogger())
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	require.NoError(t, c.SwitchTimeline(ctx, a))
	require.NoError(t, c.SendTimelineAttrs(ctx, "main", []domain.Attr{{Key: "k", Value: "v"}}))
	require.NoError(t, c.SendEvent(ctx, "init", 0, nil))
	require.NoError(t, c.SwitchTimeline(ctx, b))
	require.NoError(t, c.SendEvent(ctx, "tick", 0, nil))
	require.NoError(t, c.Flush(ctx))

	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	require.Len(t, batch, 3)
	assert.Equal(t, domain.RecordTimeline, batch[0].Kind)
	assert.Equal(t, a, batch[0].TimelineID)
	assert.Equal(t, a, batch[1].TimelineID)
	assert.Equal(t, b, batch[2].TimelineID)
	assert.Equal(t, "run", batch[2].RunID)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestStatus{Received: 2, Written: 2, Pending: 0}, status)
}

func TestClient_AutoFlushAtBatchSize(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient(sink, Options{BatchSize: 2}, discardLogger())
	ctx := context.Background()

	require.NoError(t, c.SwitchTimeline(ctx, uuid.New()))
	for i := 0; i < 5; i++ {
		require.NoError(t, c.SendEvent(ctx, "e", uint64(i), nil))
	}
	assert.Len(t, sink.batches, 2)

	status, _ := c.Status(ctx)
	assert.Equal(t, uint64(5), status.Received)
	assert.Equal(t, uint64(4), status.Written)
	assert.Equal(t, uint64(1), status.Pending)
}

func TestClient_EventWithoutTimelineFails(t *testing.T) {
	c := NewClient(&fakeSink{}, Options{}, discardLogger())
	err := c.SendEvent(context.Background(), "e", 0, nil)
	require.ErrorIs(t, err, domain.ErrBackend)
}

func TestClient_FailedFlushKeepsRecords(t *testing.T) {
	sink := &fakeSink{writeErr: errors.New("down")}
	c := NewClient(sink, Options{BatchSize: 10}, discardLogger())
	ctx := context.Background()

	require.NoError(t, c.SwitchTimeline(ctx, uuid.New()))
	require.NoError(t, c.SendEvent(ctx, "e", 0, nil))
	require.ErrorIs(t, c.Flush(ctx), domain.ErrBackend)

	sink.writeErr = nil
	require.NoError(t, c.Flush(ctx))
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 1)

	require.NoError(t, c.Close())
	assert.True(t, sink.closed)
}

func TestOpenSink_Schemes(t *testing.T) {
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "data")
	sink, err := OpenSink(ctx, "file://"+dir, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &segment.Sink{}, sink)
	require.NoError(t, sink.Close())

	_, err = OpenSink(ctx, "kafka://localhost:9092", discardLogger())
	require.ErrorIs(t, err, domain.ErrConfig)
}
