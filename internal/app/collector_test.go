package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/ctf-relay/internal/adapter/session"
	"github.com/V4T54L/ctf-relay/internal/adapter/source"
	"github.com/V4T54L/ctf-relay/internal/domain"
)

// serveCapture accepts one connection and writes pkts to it as a JSON stream.
func serveCapture(t *testing.T, pkts ...*domain.Packet) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		enc := json.NewEncoder(conn)
		for _, p := range pkts {
			if err := enc.Encode(p); err != nil {
				return
			}
		}
	}()
	return netip.MustParseAddrPort(ln.Addr().String())
}

func TestRun_TCPCollectorFlow(t *testing.T) {
	seq := func(v uint64) *uint64 { return &v }
	first := packet(0, "", "init", "tick")
	first.Context.SequenceNumber = seq(1)
	second := packet(0, "", "tick")
	second.Context.SequenceNumber = seq(2)

	remote := serveCapture(t, first, second)

	run, dataDir := setupRun(t, func(ctx context.Context, env Env) (domain.PacketSource, io.Closer, error) {
		dialer := session.NewDialer(env.Logger, env.Metrics, 10*time.Millisecond)
		conn, err := dialer.Connect(ctx, remote, time.Second)
		if err != nil {
			return nil, nil, err
		}
		src := source.NewConnSource(conn, env.Trace)
		return src, src, nil
	})
	run.Common.BackendBatchSize = 1024

	require.NoError(t, run.Execute(context.Background()))

	records := replay(t, dataDir)
	require.Len(t, records, 4)
	// The stream name is filled in from the trace configuration.
	assert.Equal(t, "main", records[0].Name)
	for i, r := range records[1:] {
		assert.Equal(t, uint64(i), r.Ordering)
		assert.Equal(t, records[0].RunID, r.RunID)
	}
}

func TestRun_TCPCollectorConnectFailure(t *testing.T) {
	// Reserve a port, then free it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	remote := netip.MustParseAddrPort(ln.Addr().String())
	require.NoError(t, ln.Close())

	run, _ := setupRun(t, func(ctx context.Context, env Env) (domain.PacketSource, io.Closer, error) {
		dialer := session.NewDialer(env.Logger, env.Metrics, 10*time.Millisecond)
		conn, err := dialer.Connect(ctx, remote, 0)
		if err != nil {
			return nil, nil, err
		}
		src := source.NewConnSource(conn, env.Trace)
		return src, src, nil
	})

	require.ErrorIs(t, run.Execute(context.Background()), domain.ErrConnect)
}
