package addrutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint builds the "host:port" peers dial to reach the server.
//
// A configured value that already carries a port wins as is. Otherwise the host is
// taken from the configured value, then from the discovered address (a STUN mapped
// address or a local IP), and joined with listenPort. The port of a STUN mapped
// address belongs to the discovery socket, never to WireGuard, so it is dropped.
func Endpoint(configured, discovered string, listenPort int) (string, bool) {
	if c := strings.TrimSpace(configured); c != "" && HasPort(c) {
		return c, true
	}
	if listenPort <= 0 {
		return "", false
	}

	host := Host(configured)
	if host == "" {
		host = Host(discovered)
	}
	if host == "" {
		return "", false
	}
	return net.JoinHostPort(host, strconv.Itoa(listenPort)), true
}

// HasPort reports whether addr is "host:port" (IPv4, hostname or bracketed IPv6).
func HasPort(addr string) bool {
	_, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	return err == nil && port != ""
}

// Host strips the port from addr, if any.
func Host(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return ""
	}

	if h, _, err := net.SplitHostPort(a); err == nil {
		return h
	}

	// Unbracketed IPv6 "host:port": peel off the last ":port".
	if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		if ip := net.ParseIP(a); ip != nil {
			return a
		}
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if _, err := strconv.Atoi(a[last+1:]); err == nil {
				return a[:last]
			}
		}
	}

	if strings.Contains(a, ":") {
		return strings.Trim(a, "[]")
	}
	return a
}

// OutboundIP returns the local address the kernel picks for outbound traffic.
// Dialing UDP sends no packets.
func OutboundIP(ctx context.Context) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("detect outbound address: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
