package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/V4T54L/ctf-relay/internal/domain"
	"github.com/V4T54L/ctf-relay/internal/pkg/config"
)

// FileSource reads packets from capture files one after the other, as a
// single stream.
type FileSource struct {
	paths  []string
	trace  *config.TraceConfig
	logger *slog.Logger

	next    int
	current io.ReadCloser
	dec     *Decoder
}

// NewFileSource checks that every path exists before any is read.
func NewFileSource(paths []string, trace *config.TraceConfig, logger *slog.Logger) (*FileSource, error) {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: CTF stream file '%s' does not exist", domain.ErrConfig, p)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: CTF stream file '%s' is a directory", domain.ErrConfig, p)
		}
	}
	return &FileSource{
		paths:  paths,
		trace:  trace,
		logger: logger.With("component", "file_source"),
	}, nil
}

// Next returns the next packet across all files, and io.EOF after the last.
func (s *FileSource) Next(ctx context.Context) (*domain.Packet, error) {
	for {
		if s.dec == nil {
			if s.next >= len(s.paths) {
				return nil, io.EOF
			}
			path := s.paths[s.next]
			s.next++
			rc, err := OpenFile(path)
			if err != nil {
				return nil, err
			}
			s.logger.Info("importing capture file", "file", path)
			s.current = rc
			s.dec = NewDecoder(rc, s.trace)
		}

		pkt, err := s.dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.logger.Debug("capture file done", "file", s.paths[s.next-1], "packets", s.dec.Count())
			s.current.Close()
			s.current, s.dec = nil, nil
			continue
		}
		return pkt, err
	}
}

// Close releases the file currently being read.
func (s *FileSource) Close() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current, s.dec = nil, nil
	return err
}
