package segment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

func setupTestSink(t *testing.T, maxSegmentSize, maxTotalSize int64) *Sink {
	t.Helper()
	dir := t.TempDir()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sink, err := Open(dir, maxSegmentSize, maxTotalSize, logger)
	if err != nil {
		t.Fatalf("failed to open segment sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func eventRecord(timeline uuid.UUID, name string, ordering uint64) domain.Record {
	return domain.Record{
		Kind:       domain.RecordEvent,
		TimelineID: timeline,
		RunID:      "run-1",
		Name:       name,
		Ordering:   ordering,
		Attrs:      []domain.Attr{{Key: "name", Value: name}},
		ReceivedAt: time.Now().UTC(),
	}
}

func TestSink_WriteAndReplay(t *testing.T) {
	sink := setupTestSink(t, 1024, 10*1024)
	timeline := uuid.New()

	records := []domain.Record{
		{Kind: domain.RecordTimeline, TimelineID: timeline, Name: "main", Attrs: []domain.Attr{{Key: "clock_style", Value: "relative"}}},
		eventRecord(timeline, "init", 0),
		eventRecord(timeline, "tick", 1),
	}
	if err := sink.Write(context.Background(), records); err != nil {
		t.Fatalf("failed to write records: %v", err)
	}
	sink.Close()

	// Re-open to continue the same directory.
	reopened, err := Open(sink.dir, 1024, 10*1024, sink.logger)
	if err != nil {
		t.Fatalf("failed to re-open sink: %v", err)
	}
	defer reopened.Close()

	var replayed []domain.Record
	err = reopened.Replay(context.Background(), func(r domain.Record) error {
		replayed = append(replayed, r)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to replay records: %v", err)
	}

	if len(replayed) != len(records) {
		t.Fatalf("expected %d replayed records, got %d", len(records), len(replayed))
	}
	for i, r := range records {
		got := replayed[i]
		if got.Kind != r.Kind || got.Name != r.Name || got.Ordering != r.Ordering || got.TimelineID != r.TimelineID {
			t.Errorf("replayed record mismatch at index %d: got %+v, want %+v", i, got, r)
		}
	}
}

func TestSink_SegmentRotation(t *testing.T) {
	// A very small segment size forces a rotation per write.
	sink := setupTestSink(t, 100, 64*1024)
	timeline := uuid.New()

	for i := 0; i < 3; i++ {
		if err := sink.Write(context.Background(), []domain.Record{eventRecord(timeline, "a record long enough to rotate", uint64(i))}); err != nil {
			t.Fatalf("failed to write record: %v", err)
		}
	}

	segments, err := sink.segments()
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	if len(segments) < 2 {
		t.Errorf("expected at least 2 segments, got %d", len(segments))
	}
}

func TestSink_MaxTotalSize(t *testing.T) {
	sink := setupTestSink(t, 100, 300)
	timeline := uuid.New()

	var err error
	for i := 0; i < 10; i++ {
		err = sink.Write(context.Background(), []domain.Record{eventRecord(timeline, "some data that will fill up the directory", uint64(i))})
		if err != nil {
			break
		}
	}
	if err == nil {
		t.Fatal("expected an error when writing beyond max total size, but got nil")
	}
}

func TestOpen_ContinuesLatestSegment(t *testing.T) {
	sink := setupTestSink(t, 1024, 64*1024)
	if err := sink.Write(context.Background(), []domain.Record{eventRecord(uuid.New(), "x", 0)}); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}
	sink.Close()

	reopened, err := Open(sink.dir, 1024, 64*1024, sink.logger)
	if err != nil {
		t.Fatalf("failed to re-open sink: %v", err)
	}
	defer reopened.Close()

	segments, _ := reopened.segments()
	if len(segments) != 1 {
		t.Fatalf("expected the existing segment to be reused, got %d segments", len(segments))
	}
	info, _ := os.Stat(segments[0])
	if reopened.currentSize != info.Size() || reopened.totalSize != info.Size() {
		t.Errorf("expected sizes to match the existing segment (%d), got current=%d total=%d", info.Size(), reopened.currentSize, reopened.totalSize)
	}
}

// flakyFile writes through to the segment but fails Sync while failSync is set.
type flakyFile struct {
	*os.File
	failSync bool
}

func (f *flakyFile) Sync() error {
	if f.failSync {
		return errors.New("input/output error")
	}
	return f.File.Sync()
}

func TestSink_FailedWriteLeavesNoPartialBatch(t *testing.T) {
	sink := setupTestSink(t, 1<<20, 10<<20)
	ctx := context.Background()
	timeline := uuid.New()

	if err := sink.Write(ctx, []domain.Record{eventRecord(timeline, "init", 0)}); err != nil {
		t.Fatalf("failed to write first batch: %v", err)
	}
	sizeBefore := sink.currentSize

	flaky := &flakyFile{File: sink.current.(*os.File), failSync: true}
	sink.current = flaky

	batch := []domain.Record{eventRecord(timeline, "tick", 1), eventRecord(timeline, "tick", 2)}
	if err := sink.Write(ctx, batch); err == nil {
		t.Fatal("expected write to fail when sync fails")
	}

	info, err := flaky.Stat()
	if err != nil {
		t.Fatalf("failed to stat segment: %v", err)
	}
	if info.Size() != sizeBefore {
		t.Fatalf("expected segment truncated to %d bytes, got %d", sizeBefore, info.Size())
	}

	// The client retries the same batch once the disk recovers.
	flaky.failSync = false
	if err := sink.Write(ctx, batch); err != nil {
		t.Fatalf("failed to write retried batch: %v", err)
	}

	var names []string
	if err := sink.Replay(ctx, func(r domain.Record) error {
		names = append(names, r.Name)
		return nil
	}); err != nil {
		t.Fatalf("failed to replay: %v", err)
	}
	if len(names) != 3 || names[0] != "init" || names[1] != "tick" || names[2] != "tick" {
		t.Fatalf("expected [init tick tick], got %v", names)
	}
}
