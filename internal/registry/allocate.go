package registry

import (
	"net/netip"
	"strings"

	"peerctl/internal/wireguard"
)

// firstPeerHost is the host index of the first peer; .0 is the network and .1 the server.
const firstPeerHost = 2

// lastHost is the highest usable host index; the top address is broadcast.
func lastHost(network netip.Prefix) int {
	return 1<<(32-network.Bits()) - 2
}

func hostIndex(network netip.Prefix, addr netip.Addr) int {
	if !addr.Is4() || !network.Contains(addr) {
		return -1
	}
	return int(ipv4Uint(addr) - ipv4Uint(network.Addr()))
}

func hostAddr(network netip.Prefix, host int) netip.Addr {
	return addIPv4(network.Addr(), uint32(host))
}

func ipv4Uint(a netip.Addr) uint32 {
	v := a.As4()
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])
}

func addIPv4(base netip.Addr, offset uint32) netip.Addr {
	val := ipv4Uint(base) + offset
	return netip.AddrFrom4([4]byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)})
}

// parseHost accepts "10.0.0.2" or "10.0.0.2/32".
func parseHost(network netip.Prefix, value string) int {
	value = strings.TrimSpace(value)
	if p, err := netip.ParsePrefix(value); err == nil {
		return hostIndex(network, p.Addr())
	}
	if a, err := netip.ParseAddr(value); err == nil {
		return hostIndex(network, a)
	}
	return -1
}

// usedHostsLocked collects every host index taken by a record, a peer file that
// failed to load, the server's own [Interface] Address, or a stanza the registry
// does not own.
func (r *Registry) usedHostsLocked(conf *wireguard.ServerConf) map[int]bool {
	used := map[int]bool{}
	for _, rec := range r.peers {
		if rec.host > 0 {
			used[rec.host] = true
		}
	}
	for h := range r.stray {
		used[h] = true
	}
	if v, ok := conf.InterfaceValue("Address"); ok {
		for _, part := range strings.Split(v, ",") {
			if h := parseHost(r.network, part); h > 0 {
				used[h] = true
			}
		}
	}
	for _, stanza := range conf.Peers {
		for _, part := range strings.Split(stanza.Value("AllowedIPs"), ",") {
			p, err := netip.ParsePrefix(strings.TrimSpace(part))
			if err != nil || p.Bits() != 32 {
				continue
			}
			if h := hostIndex(r.network, p.Addr()); h > 0 {
				used[h] = true
			}
		}
	}
	return used
}

// allocateLocked picks the host for the next peer. With reuse off it walks up
// from the persisted cursor, so a freed address is never handed out again;
// with reuse on it takes the lowest free host.
func (r *Registry) allocateLocked(conf *wireguard.ServerConf) (int, error) {
	used := r.usedHostsLocked(conf)
	last := lastHost(r.network)

	h := firstPeerHost
	if !r.reuse {
		h = max(r.nextHost, firstPeerHost)
	}
	for ; h <= last; h++ {
		if !used[h] {
			return h, nil
		}
	}
	return 0, ErrAddressSpaceExhausted
}
