package wireguard

import (
	"fmt"
	"strconv"
	"strings"

	"peerctl/internal/model"
)

// MarkerPrefix tags the comment line that names a peer stanza in the server config.
const MarkerPrefix = "# Client: "

// ClientOptions holds the server-wide settings that shape every client config.
type ClientOptions struct {
	DNS          string
	AllowedIPs   []string
	PrefixBits   int
	KeepaliveSec int
}

// ClientConfig is the parsed form of a rendered client config.
type ClientConfig struct {
	PrivateKey      string
	Address         string
	PrefixBits      int
	DNS             string
	ServerPublicKey string
	PresharedKey    string
	Endpoint        string
	AllowedIPs      []string
	KeepaliveSec    int
}

// RenderClient renders the wg-quick config handed to a peer.
func RenderClient(peer model.Peer, server model.ServerIdentity, opts ClientOptions) (string, error) {
	if peer.PrivateKey == "" {
		return "", fmt.Errorf("private key is required")
	}
	if peer.Address == "" {
		return "", fmt.Errorf("address is required")
	}
	if server.PublicKey == "" {
		return "", fmt.Errorf("server public key is required")
	}
	if server.Endpoint == "" {
		return "", fmt.Errorf("server endpoint is required")
	}
	bits := opts.PrefixBits
	if bits <= 0 {
		bits = 32
	}
	allowed := opts.AllowedIPs
	if len(allowed) == 0 {
		allowed = []string{"0.0.0.0/0"}
	}

	var b strings.Builder
	b.WriteString("[Interface]\n")
	b.WriteString("PrivateKey = ")
	b.WriteString(peer.PrivateKey)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Address = %s/%d\n", peer.Address, bits)
	if opts.DNS != "" {
		b.WriteString("DNS = ")
		b.WriteString(opts.DNS)
		b.WriteString("\n")
	}

	b.WriteString("\n[Peer]\n")
	b.WriteString("PublicKey = ")
	b.WriteString(server.PublicKey)
	b.WriteString("\n")
	if peer.PresharedKey != "" {
		b.WriteString("PresharedKey = ")
		b.WriteString(peer.PresharedKey)
		b.WriteString("\n")
	}
	b.WriteString("Endpoint = ")
	b.WriteString(server.Endpoint)
	b.WriteString("\n")
	b.WriteString("AllowedIPs = ")
	b.WriteString(strings.Join(allowed, ", "))
	b.WriteString("\n")
	if opts.KeepaliveSec > 0 {
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", opts.KeepaliveSec)
	}

	return b.String(), nil
}

// RenderStanza renders the server-side [Peer] block for a peer, led by its name marker.
func RenderStanza(peer model.Peer) (string, error) {
	if peer.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	if peer.PublicKey == "" {
		return "", fmt.Errorf("public key is required")
	}
	if peer.Address == "" {
		return "", fmt.Errorf("address is required")
	}

	var b strings.Builder
	b.WriteString(MarkerPrefix)
	b.WriteString(peer.Name)
	b.WriteString("\n[Peer]\n")
	b.WriteString("PublicKey = ")
	b.WriteString(peer.PublicKey)
	b.WriteString("\n")
	if peer.PresharedKey != "" {
		b.WriteString("PresharedKey = ")
		b.WriteString(peer.PresharedKey)
		b.WriteString("\n")
	}
	b.WriteString("AllowedIPs = ")
	b.WriteString(peer.Address)
	b.WriteString("/32\n")
	return b.String(), nil
}

// ParseClientConfig reads back the fields RenderClient writes.
func ParseClientConfig(text string) (ClientConfig, error) {
	var cc ClientConfig
	section := ""
	for i, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		if name, ok := sectionName(t); ok {
			section = name
			continue
		}
		key, value, ok := keyValue(t)
		if !ok {
			return ClientConfig{}, fmt.Errorf("line %d: expected key = value", i+1)
		}
		switch section + "." + key {
		case "interface.privatekey":
			cc.PrivateKey = value
		case "interface.address":
			addr, bits, _ := strings.Cut(value, "/")
			cc.Address = addr
			if bits != "" {
				n, err := strconv.Atoi(bits)
				if err != nil {
					return ClientConfig{}, fmt.Errorf("line %d: invalid prefix %q", i+1, bits)
				}
				cc.PrefixBits = n
			}
		case "interface.dns":
			cc.DNS = value
		case "peer.publickey":
			cc.ServerPublicKey = value
		case "peer.presharedkey":
			cc.PresharedKey = value
		case "peer.endpoint":
			cc.Endpoint = value
		case "peer.allowedips":
			cc.AllowedIPs = splitList(value)
		case "peer.persistentkeepalive":
			n, err := strconv.Atoi(value)
			if err != nil {
				return ClientConfig{}, fmt.Errorf("line %d: invalid keepalive %q", i+1, value)
			}
			cc.KeepaliveSec = n
		}
	}
	if cc.PrivateKey == "" {
		return ClientConfig{}, fmt.Errorf("missing [Interface] PrivateKey")
	}
	return cc, nil
}

// ScanAddress returns the first address in an [Interface] Address line, or ""
// when there is none. Unlike ParseClientConfig it skips lines it cannot read.
func ScanAddress(text string) string {
	section := ""
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if name, ok := sectionName(t); ok {
			section = name
			continue
		}
		if section != "interface" {
			continue
		}
		if key, value, ok := keyValue(t); ok && key == "address" {
			first, _, _ := strings.Cut(value, ",")
			return strings.TrimSpace(first)
		}
	}
	return ""
}

// wg-quick keys that `wg syncconf` rejects.
var quickOnlyKeys = map[string]bool{
	"address":    true,
	"dns":        true,
	"mtu":        true,
	"table":      true,
	"preup":      true,
	"postup":     true,
	"predown":    true,
	"postdown":   true,
	"saveconfig": true,
}

// StripQuick removes wg-quick-only interface settings, like `wg-quick strip`.
func StripQuick(text string) string {
	var b strings.Builder
	section := ""
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		t := strings.TrimSpace(line)
		if name, ok := sectionName(t); ok {
			section = name
		} else if section == "interface" {
			if key, _, ok := keyValue(t); ok && quickOnlyKeys[key] {
				continue
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// sectionName returns the lower-cased name of a "[Section]" line.
func sectionName(t string) (string, bool) {
	if len(t) < 2 || t[0] != '[' || t[len(t)-1] != ']' {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(t[1 : len(t)-1])), true
}

// keyValue splits "Key = Value"; the key is lower-cased.
func keyValue(t string) (string, string, bool) {
	key, value, ok := strings.Cut(t, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
