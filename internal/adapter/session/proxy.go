package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/valyala/fastjson"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// ProtocolV1 is the proxy session protocol version the relay speaks.
const ProtocolV1 = 1

// maxStatusSize bounds the session status document.
const maxStatusSize = 64 * 1024

// Target selects the chip the probe attaches to.
type Target struct {
	// Chip is the specific chip name; empty means auto-detect.
	Chip string
}

// MarshalJSON encodes "Auto" or {"Specific": "<chip>"}.
func (t Target) MarshalJSON() ([]byte, error) {
	if t.Chip == "" {
		return json.Marshal("Auto")
	}
	return json.Marshal(map[string]string{"Specific": t.Chip})
}

// ProbeConfig selects and configures the debug probe.
type ProbeConfig struct {
	ProbeSelector    *string `json:"probe_selector"`
	Protocol         string  `json:"protocol"`
	SpeedKHz         uint32  `json:"speed_khz"`
	Target           Target  `json:"target"`
	AttachUnderReset bool    `json:"attach_under_reset"`
	ForceExclusive   bool    `json:"force_exclusive"`
}

// TargetConfig controls how the proxy drives the target core.
type TargetConfig struct {
	AutoRecover                    bool   `json:"auto_recover"`
	Core                           uint32 `json:"core"`
	Reset                          bool   `json:"reset"`
	Bootloader                     bool   `json:"bootloader"`
	BootloaderCompanionApplication bool   `json:"bootloader_companion_application"`
}

// RTTConfig controls the RTT channel the trace bytes are read from.
type RTTConfig struct {
	AttachTimeoutMs          *uint64 `json:"attach_timeout_ms"`
	SetupOnBreakpointAddress *uint64 `json:"setup_on_breakpoint_address"`
	StopOnBreakpointAddress  *uint64 `json:"stop_on_breakpoint_address"`
	NoDataStopTimeoutMs      *uint64 `json:"no_data_stop_timeout_ms"`
	ControlBlockAddress      *uint64 `json:"control_block_address"`
	UpChannel                uint32  `json:"up_channel"`
	DownChannel              uint32  `json:"down_channel"`
	DisableControlPlane      bool    `json:"disable_control_plane"`
	Restart                  bool    `json:"restart"`
	RTTReadBufferSize        uint32  `json:"rtt_read_buffer_size"`
	RTTPollIntervalMs        uint64  `json:"rtt_poll_interval_ms"`
	RTTIdlePollIntervalMs    uint64  `json:"rtt_idle_poll_interval_ms"`
}

// Config is the session request sent to the proxy.
type Config struct {
	Version int          `json:"version"`
	Probe   ProbeConfig  `json:"probe"`
	Target  TargetConfig `json:"target"`
	RTT     RTTConfig    `json:"rtt"`
}

// Status is the proxy's answer to a session request.
type Status struct {
	// SessionID is set when the session started.
	SessionID string
	// Err is the proxy's error message when it refused the session.
	Err string
}

// Proxy negotiates probe proxy sessions.
type Proxy struct {
	dialer *Dialer
	cfg    *Config
}

// NewProxy creates a Proxy that requests sessions with cfg.
func NewProxy(dialer *Dialer, cfg *Config) *Proxy {
	return &Proxy{dialer: dialer, cfg: cfg}
}

// StartWithAttachTimeout starts a session, racing the whole connect and
// handshake against attachTimeout. If that attempt does not succeed in time,
// one more attempt is made with no attach budget. A zero attachTimeout makes a
// single unbudgeted attempt.
func (p *Proxy) StartWithAttachTimeout(ctx context.Context, remote netip.AddrPort, attachTimeout, connectTimeout time.Duration) (*net.TCPConn, error) {
	if attachTimeout <= 0 {
		return p.Start(ctx, remote, connectTimeout)
	}

	attachCtx, cancel := context.WithTimeout(ctx, attachTimeout)
	conn, err := p.Start(attachCtx, remote, connectTimeout)
	cancel()
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	p.dialer.logger.Warn("session not started within attach timeout, retrying", "attach_timeout", attachTimeout, "error", err)
	return p.Start(ctx, remote, connectTimeout)
}

// Start connects to remote, sends the session configuration and waits for the
// proxy's status. On success the returned connection carries the trace bytes.
func (p *Proxy) Start(ctx context.Context, remote netip.AddrPort, connectTimeout time.Duration) (*net.TCPConn, error) {
	conn, err := p.dialer.Connect(ctx, remote, connectTimeout)
	if err != nil {
		return nil, err
	}

	// Unblock reads and writes when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	status, err := p.handshake(conn)
	if !stop() {
		// ctx ended; the deadline may already be set.
		conn.Close()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrHandshake, err)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	if status.Err != "" {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrHandshake, status.Err)
	}

	p.dialer.logger.Debug("session started", "session_id", status.SessionID)
	return conn, nil
}

func (p *Proxy) handshake(conn *net.TCPConn) (Status, error) {
	if err := conn.SetNoDelay(true); err != nil {
		return Status{}, fmt.Errorf("%w: failed to disable delay: %w", domain.ErrConnect, err)
	}

	p.dialer.logger.Debug("starting a new session")
	data, err := json.Marshal(p.cfg)
	if err != nil {
		return Status{}, fmt.Errorf("%w: failed to encode session config: %w", domain.ErrConfig, err)
	}
	if _, err := conn.Write(data); err != nil {
		return Status{}, fmt.Errorf("%w: failed to send session config: %w", domain.ErrHandshake, err)
	}

	return ReadStatus(conn)
}

// ReadStatus reads a status document one byte at a time, attempting a parse
// after every byte. Reading stops at the end of the document so none of the
// trace bytes that follow it are consumed.
func ReadStatus(r io.Reader) (Status, error) {
	var (
		p   fastjson.Parser
		buf []byte
		one [1]byte
	)
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Status{}, fmt.Errorf("%w: failed to read session status: %w", domain.ErrHandshake, err)
		}
		buf = append(buf, one[0])
		if len(buf) > maxStatusSize {
			return Status{}, fmt.Errorf("%w: session status exceeds %d bytes", domain.ErrHandshake, maxStatusSize)
		}

		v, err := p.ParseBytes(buf)
		if err != nil {
			continue
		}
		return statusFromValue(v)
	}
}

func statusFromValue(v *fastjson.Value) (Status, error) {
	if started := v.Get("Started"); started != nil {
		id := started.String()
		if sb, err := started.StringBytes(); err == nil {
			id = string(sb)
		}
		return Status{SessionID: id}, nil
	}
	if failed := v.Get("Error"); failed != nil {
		msg := failed.String()
		if sb, err := failed.StringBytes(); err == nil {
			msg = string(sb)
		}
		return Status{Err: msg}, nil
	}
	return Status{}, fmt.Errorf("%w: unexpected session status %s", domain.ErrHandshake, v.String())
}
