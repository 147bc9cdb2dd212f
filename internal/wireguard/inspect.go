package wireguard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"peerctl/internal/model"
)

// LivePeers lists the peers the running interface knows about.
func (m *Manager) LivePeers(ctx context.Context) ([]model.LivePeer, error) {
	if m.iface == "" {
		return nil, fmt.Errorf("wireguard interface is required")
	}
	out, err := m.r.Output(ctx, "wg", "show", m.iface, "dump")
	if err != nil {
		return nil, err
	}
	return ParseWgDump(out), nil
}

// ParseWgDump parses `wg show <iface> dump`. The first line describes the interface.
func ParseWgDump(dump string) []model.LivePeer {
	lines := strings.Split(strings.TrimSpace(dump), "\n")
	if len(lines) < 2 {
		return nil
	}
	var peers []model.LivePeer
	for _, line := range lines[1:] {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 5 || fields[0] == "" {
			continue
		}
		p := model.LivePeer{PublicKey: fields[0]}
		if ep := fields[2]; ep != "(none)" && ep != "0.0.0.0:0" && ep != "[::]:0" {
			p.Endpoint = ep
		}
		if fields[3] != "(none)" {
			p.AllowedIPs = splitList(fields[3])
		}
		if ts, err := strconv.ParseInt(fields[4], 10, 64); err == nil && ts > 0 {
			p.LatestHandshake = time.Unix(ts, 0).UTC()
		}
		peers = append(peers, p)
	}
	return peers
}
