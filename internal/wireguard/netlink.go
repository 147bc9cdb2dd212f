package wireguard

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"peerctl/internal/model"
)

// NetlinkController configures the kernel interface directly through wgctrl.
type NetlinkController struct {
	iface  string
	client *wgctrl.Client
}

func NewNetlinkController(iface string) (*NetlinkController, error) {
	if iface == "" {
		return nil, fmt.Errorf("wireguard interface is required")
	}
	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("open wgctrl: %w", err)
	}
	return &NetlinkController{iface: iface, client: client}, nil
}

func (n *NetlinkController) Close() error {
	return n.client.Close()
}

// Apply replaces the interface peers with those of conf.
func (n *NetlinkController) Apply(ctx context.Context, conf string) error {
	parsed, err := ParseServerConf(conf)
	if err != nil {
		return err
	}
	cfg, err := DeviceConfig(parsed)
	if err != nil {
		return err
	}
	return n.configure(ctx, cfg)
}

// Restart re-applies the whole config, private key and listen port included.
// Netlink has no notion of bringing wg-quick down and up.
func (n *NetlinkController) Restart(ctx context.Context, conf string) error {
	return n.Apply(ctx, conf)
}

func (n *NetlinkController) configure(ctx context.Context, cfg wgtypes.Config) error {
	done := make(chan error, 1)
	go func() {
		done <- n.client.ConfigureDevice(n.iface, cfg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("configure %s: %w", n.iface, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("configure %s: %w", n.iface, ctx.Err())
	}
}

// LivePeers lists the peers of the kernel device.
func (n *NetlinkController) LivePeers(ctx context.Context) ([]model.LivePeer, error) {
	dev, err := n.client.Device(n.iface)
	if err != nil {
		return nil, err
	}
	peers := make([]model.LivePeer, 0, len(dev.Peers))
	for _, p := range dev.Peers {
		lp := model.LivePeer{PublicKey: p.PublicKey.String(), LatestHandshake: p.LastHandshakeTime}
		if p.Endpoint != nil {
			lp.Endpoint = p.Endpoint.String()
		}
		for _, ip := range p.AllowedIPs {
			lp.AllowedIPs = append(lp.AllowedIPs, ip.String())
		}
		peers = append(peers, lp)
	}
	return peers, nil
}

// DeviceConfig converts a parsed server config into a wgctrl device config
// that replaces every peer on the interface.
func DeviceConfig(c *ServerConf) (wgtypes.Config, error) {
	cfg := wgtypes.Config{ReplacePeers: true}

	if v, ok := c.InterfaceValue("PrivateKey"); ok {
		key, err := wgtypes.ParseKey(v)
		if err != nil {
			return wgtypes.Config{}, fmt.Errorf("interface private key: %w", err)
		}
		cfg.PrivateKey = &key
	}
	if v, ok := c.InterfaceValue("ListenPort"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return wgtypes.Config{}, fmt.Errorf("interface listen port %q: %w", v, err)
		}
		cfg.ListenPort = &port
	}

	cfg.Peers = make([]wgtypes.PeerConfig, 0, len(c.Peers))
	for _, stanza := range c.Peers {
		pc, err := peerConfig(stanza)
		if err != nil {
			return wgtypes.Config{}, fmt.Errorf("peer %s: %w", stanzaLabel(stanza), err)
		}
		cfg.Peers = append(cfg.Peers, pc)
	}
	return cfg, nil
}

func peerConfig(s PeerStanza) (wgtypes.PeerConfig, error) {
	pub, err := wgtypes.ParseKey(s.PublicKey)
	if err != nil {
		return wgtypes.PeerConfig{}, fmt.Errorf("public key: %w", err)
	}
	pc := wgtypes.PeerConfig{PublicKey: pub, ReplaceAllowedIPs: true}

	if v := s.Value("PresharedKey"); v != "" {
		psk, err := wgtypes.ParseKey(v)
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("preshared key: %w", err)
		}
		pc.PresharedKey = &psk
	}
	for _, cidr := range splitList(s.Value("AllowedIPs")) {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("allowed ip %q: %w", cidr, err)
		}
		pc.AllowedIPs = append(pc.AllowedIPs, *ipnet)
	}
	if v := s.Value("Endpoint"); v != "" {
		addr, err := net.ResolveUDPAddr("udp", v)
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("endpoint %q: %w", v, err)
		}
		pc.Endpoint = addr
	}
	if v := s.Value("PersistentKeepalive"); v != "" && v != "off" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("keepalive %q: %w", v, err)
		}
		d := time.Duration(sec) * time.Second
		pc.PersistentKeepaliveInterval = &d
	}
	return pc, nil
}

func stanzaLabel(s PeerStanza) string {
	if s.Name != "" {
		return s.Name
	}
	return s.PublicKey
}
