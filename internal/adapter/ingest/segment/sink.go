// Package segment stores records as newline-delimited JSON in size-bounded
// segment files under a directory.
package segment

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

const (
	segmentPrefix = "records-"
	segmentSuffix = ".ndjson"
	filePerm      = 0o644

	DefaultMaxSegmentSize = 64 << 20
	DefaultMaxTotalSize   = 4 << 30
)

// Sink appends records to the newest segment file, rotating when it grows
// past maxSegmentSize. Writes that would take the directory past maxTotalSize
// are refused.
type Sink struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu          sync.Mutex
	current     segmentFile
	currentSize int64
	totalSize   int64
}

// segmentFile is the part of *os.File a segment is written through.
type segmentFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Truncate(size int64) error
	Close() error
}

// Open creates dir if needed and continues the newest segment in it.
func Open(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Sink, error) {
	if dir == "" {
		return nil, fmt.Errorf("missing segment directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory %s: %w", dir, err)
	}

	s := &Sink{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "segment_sink"),
	}
	total, err := s.diskUsage()
	if err != nil {
		return nil, err
	}
	s.totalSize = total
	if err := s.openLatest(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write appends records and syncs the segment to disk.
func (s *Sink) Write(ctx context.Context, records []domain.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to marshal record '%s': %w", records[i].Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalSize+int64(buf.Len()) > s.maxTotalSize {
		return fmt.Errorf("segment directory max total size exceeded (%d + %d > %d)", s.totalSize, buf.Len(), s.maxTotalSize)
	}
	if s.current == nil {
		if err := s.rotate(); err != nil {
			return err
		}
	}

	if _, err := s.current.Write(buf.Bytes()); err != nil {
		return s.rollback(fmt.Errorf("failed to write segment: %w", err))
	}
	if err := s.current.Sync(); err != nil {
		return s.rollback(fmt.Errorf("failed to sync segment: %w", err))
	}
	s.currentSize += int64(buf.Len())
	s.totalSize += int64(buf.Len())

	if s.currentSize >= s.maxSegmentSize {
		if err := s.rotate(); err != nil {
			s.logger.Error("failed to rotate segment", "error", err)
		}
	}
	return nil
}

// rollback truncates the current segment to its size before a failed write,
// so a retried batch is not stored twice.
func (s *Sink) rollback(cause error) error {
	if err := s.current.Truncate(s.currentSize); err != nil {
		s.logger.Error("failed to truncate segment after failed write", "error", err, "size", s.currentSize)
		// The segment now ends in a partial batch; later records go to a fresh one.
		s.current.Close()
		s.current = nil
		return fmt.Errorf("%w (segment left with a partial batch: %w)", cause, err)
	}
	return cause
}

// Replay reads every record back, oldest segment first.
func (s *Sink) Replay(ctx context.Context, handler func(domain.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments, err := s.segments()
	if err != nil {
		return err
	}
	for _, path := range segments {
		if err := replayFile(ctx, path, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(ctx context.Context, path string, handler func(domain.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r domain.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return fmt.Errorf("corrupt record in segment %s: %w", path, err)
		}
		if err := handler(r); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

func (s *Sink) rotate() error {
	if s.current != nil {
		if err := s.current.Close(); err != nil {
			s.logger.Error("failed to close segment before rotating", "error", err)
		}
		s.current = nil
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s%020d%s", segmentPrefix, time.Now().UnixNano(), segmentSuffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create segment %s: %w", path, err)
	}
	s.current = f
	s.currentSize = 0
	s.logger.Debug("rotated to new segment", "path", path)
	return nil
}

func (s *Sink) openLatest() error {
	segments, err := s.segments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return s.rotate()
	}

	latest := segments[len(segments)-1]
	info, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat segment %s: %w", latest, err)
	}
	if info.Size() >= s.maxSegmentSize {
		return s.rotate()
	}
	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", latest, err)
	}
	s.current = f
	s.currentSize = info.Size()
	s.logger.Info("continuing existing segment", "path", latest, "size", s.currentSize)
	return nil
}

func (s *Sink) segments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), segmentPrefix) && strings.HasSuffix(e.Name(), segmentSuffix) {
			paths = append(paths, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Sink) diskUsage() (int64, error) {
	segments, err := s.segments()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close closes the current segment.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	return err
}
