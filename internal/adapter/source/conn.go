package source

import (
	"context"
	"net"
	"sync"

	"github.com/V4T54L/ctf-relay/internal/domain"
	"github.com/V4T54L/ctf-relay/internal/pkg/config"
)

// ConnSource decodes packets from a network connection. Cancelling the
// context passed to Next closes the connection so a blocked read returns.
type ConnSource struct {
	conn net.Conn
	dec  *Decoder

	once sync.Once
	stop func() bool
}

// NewConnSource takes ownership of conn.
func NewConnSource(conn net.Conn, trace *config.TraceConfig) *ConnSource {
	return &ConnSource{conn: conn, dec: NewDecoder(conn, trace)}
}

func (s *ConnSource) Next(ctx context.Context) (*domain.Packet, error) {
	s.once.Do(func() {
		s.stop = context.AfterFunc(ctx, func() { s.conn.Close() })
	})
	pkt, err := s.dec.Next(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return pkt, err
}

// Close closes the connection.
func (s *ConnSource) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return s.conn.Close()
}
