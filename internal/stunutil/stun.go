// Package stunutil finds the public address of the host running peerctl so a
// server endpoint can be filled in when none is configured.
package stunutil

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// ErrNoServers is returned when no STUN server is configured.
var ErrNoServers = errors.New("no STUN servers configured")

// Mapping is the host's public address as seen by the STUN servers that answered.
type Mapping struct {
	IP netip.Addr
	// Answers counts the servers that replied.
	Answers int
	// PortShifts is set when two servers saw different mapped ports or IPs. Peers
	// behind such a NAT mapping cannot rely on the listen port being forwarded.
	PortShifts bool
}

// PublicIP asks every server for the mapped address of one binding request and
// returns the first answer. Servers that fail are skipped; the error of the last
// one is returned only when none answered.
func PublicIP(ctx context.Context, servers []string, timeout time.Duration) (Mapping, error) {
	if len(servers) == 0 {
		return Mapping{}, ErrNoServers
	}

	var (
		m       Mapping
		first   netip.AddrPort
		lastErr error
	)
	for _, server := range servers {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		ap, err := mappedAddr(ctx, server, timeout)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}
		if m.Answers == 0 {
			first, m.IP = ap, ap.Addr()
		} else if ap != first {
			m.PortShifts = true
		}
		m.Answers++
	}
	if m.Answers == 0 {
		if lastErr == nil {
			lastErr = errors.New("no STUN server answered")
		}
		return Mapping{}, lastErr
	}
	return m, nil
}

func serverURI(server string) (*stun.URI, error) {
	s := strings.TrimSpace(server)
	if s == "" {
		return nil, errors.New("empty STUN server")
	}
	if !strings.HasPrefix(s, "stun:") {
		s = "stun:" + s
	}
	return stun.ParseURI(s)
}

type answer struct {
	addr netip.AddrPort
	err  error
}

func mappedAddr(ctx context.Context, server string, timeout time.Duration) (netip.AddrPort, error) {
	uri, err := serverURI(server)
	if err != nil {
		return netip.AddrPort{}, err
	}
	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return netip.AddrPort{}, err
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan answer, 1)
	go func() {
		req := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
		var got answer
		err := client.Do(req, func(ev stun.Event) {
			if ev.Error != nil {
				got.err = ev.Error
				return
			}
			var xor stun.XORMappedAddress
			if err := xor.GetFrom(ev.Message); err != nil {
				got.err = err
				return
			}
			ip, ok := netip.AddrFromSlice(xor.IP)
			if !ok {
				got.err = fmt.Errorf("bad mapped address %v", xor.IP)
				return
			}
			got.addr = netip.AddrPortFrom(ip.Unmap(), uint16(xor.Port))
		})
		if err != nil && got.err == nil {
			got.err = err
		}
		done <- got
	}()

	select {
	case a := <-done:
		return a.addr, a.err
	case <-ctx.Done():
		return netip.AddrPort{}, ctx.Err()
	}
}
