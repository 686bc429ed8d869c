// Package source produces decoded packets from capture files and network
// connections.
//
// Packets are carried as newline-delimited JSON documents, one packet per
// line. Capture files may be compressed with zstd, gzip or lz4; the format is
// detected from the leading magic bytes.
package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// Compression identifies the framing of a capture file.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
	CompressionLZ4  Compression = "lz4"
)

var (
	magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}
	magicGzip = []byte{0x1F, 0x8B}
	magicLZ4  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// DetectCompression reports the compression of a stream from its first bytes.
func DetectCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	case bytes.HasPrefix(head, magicLZ4):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Decompress wraps r with the decompressor its leading bytes call for.
func Decompress(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(magicZstd))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, CompressionNone, err
	}

	kind := DetectCompression(head)
	switch kind {
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, kind, err
		}
		return &readCloser{Reader: zr, closers: []func() error{func() error { zr.Close(); return nil }}}, kind, nil
	case CompressionGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, kind, err
		}
		return &readCloser{Reader: gr, closers: []func() error{gr.Close}}, kind, nil
	case CompressionLZ4:
		return &readCloser{Reader: lz4.NewReader(br)}, kind, nil
	default:
		return &readCloser{Reader: br}, kind, nil
	}
}

// OpenFile opens a capture file, transparently decompressing it.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open capture file '%s': %w", domain.ErrConfig, path, err)
	}
	rc, _, err := Decompress(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: failed to read capture file '%s': %w", domain.ErrDecode, path, err)
	}
	inner := rc.(*readCloser)
	inner.closers = append(inner.closers, f.Close)
	return inner, nil
}
