// Package session establishes the network transports that carry trace bytes:
// plain TCP connections and negotiated probe proxy sessions.
package session

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// ResolveRemote turns a remote string into a socket address. A literal ip:port is
// used as is; anything else is treated as a URL (or host:port) and resolved,
// keeping the first address.
func ResolveRemote(ctx context.Context, remote string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap, nil
	}

	host, port, err := splitRemote(remote)
	if err != nil {
		return netip.AddrPort{}, err
	}

	portNum, err := net.DefaultResolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: invalid port in remote '%s': %w", domain.ErrConfig, remote, err)
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: failed to resolve remote '%s': %w", domain.ErrConnect, remote, err)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: could not resolve remote '%s'", domain.ErrConnect, remote)
	}
	return netip.AddrPortFrom(addrs[0].Unmap(), uint16(portNum)), nil
}

func splitRemote(remote string) (host, port string, err error) {
	u, err := url.Parse(remote)
	if err == nil && u.Host != "" {
		port = u.Port()
		if port == "" {
			// Fall back to the scheme's well-known port.
			port = u.Scheme
		}
		return u.Hostname(), port, nil
	}

	host, port, splitErr := net.SplitHostPort(remote)
	if splitErr != nil {
		return "", "", fmt.Errorf("%w: failed to parse remote '%s' as URL or host:port: %w", domain.ErrConfig, remote, splitErr)
	}
	return host, port, nil
}
