package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/V4T54L/ctf-relay/internal/domain"
	"github.com/V4T54L/ctf-relay/internal/pkg/config"
)

// Decoder reads newline-delimited JSON packets from a byte stream.
type Decoder struct {
	dec   *json.Decoder
	trace *config.TraceConfig
	count uint64
}

// NewDecoder creates a Decoder over r. trace, when non-nil, names streams
// whose packets carry only a stream id.
func NewDecoder(r io.Reader, trace *config.TraceConfig) *Decoder {
	return &Decoder{dec: json.NewDecoder(r), trace: trace}
}

// Next decodes the next packet. It returns io.EOF at a clean end of stream.
func (d *Decoder) Next(ctx context.Context) (*domain.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pkt domain.Packet
	if err := d.dec.Decode(&pkt); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: packet %d: %w", domain.ErrDecode, d.count, err)
	}
	d.count++

	if pkt.Header.StreamName == "" && d.trace != nil {
		if name, ok := d.trace.StreamName(pkt.Header.StreamID); ok {
			pkt.Header.StreamName = name
		}
	}
	return &pkt, nil
}

// Count returns the number of packets decoded so far.
func (d *Decoder) Count() uint64 {
	return d.count
}
