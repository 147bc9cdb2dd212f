package wireguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facebookgo/atomicfile"
)

// PeerStanza is one [Peer] block of the server config. Lines holds the raw text,
// including the blank lines that precede it and its name marker.
type PeerStanza struct {
	Name      string
	PublicKey string
	Lines     []string
}

// Value returns the value of key inside the [Peer] section of the stanza.
func (s PeerStanza) Value(key string) string {
	key = strings.ToLower(key)
	for _, line := range s.Lines {
		if k, v, ok := keyValue(strings.TrimSpace(line)); ok && k == key {
			return v
		}
	}
	return ""
}

// ServerConf is the parsed server config: everything up to the first peer stanza,
// then the stanzas in file order. String reproduces untouched input byte for byte.
type ServerConf struct {
	Head  []string
	Peers []PeerStanza

	trailingNewline bool
}

// ParseServerConf splits the server config into its head and peer stanzas.
// A stanza starts at a "# Client: <name>" marker or at a [Peer] header that
// has no marker directly above it.
func ParseServerConf(text string) (*ServerConf, error) {
	c := &ServerConf{}
	if text == "" {
		return c, nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		c.trailingNewline = true
		lines = lines[:len(lines)-1]
	}

	var (
		cur      *PeerStanza
		pending  []string
		awaiting bool // cur has a marker but no [Peer] header yet
	)
	flush := func() {
		if cur != nil {
			c.Peers = append(c.Peers, *cur)
			cur = nil
		}
	}
	emit := func(line string) {
		if cur != nil {
			cur.Lines = append(cur.Lines, pending...)
			cur.Lines = append(cur.Lines, line)
		} else {
			c.Head = append(c.Head, pending...)
			c.Head = append(c.Head, line)
		}
		pending = nil
	}

	for i, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			pending = append(pending, line)
			continue
		}
		if strings.HasPrefix(t, strings.TrimSpace(MarkerPrefix)) {
			flush()
			cur = &PeerStanza{Name: strings.TrimSpace(strings.TrimPrefix(t, strings.TrimSpace(MarkerPrefix)))}
			awaiting = true
			emit(line)
			continue
		}
		if section, ok := sectionName(t); ok {
			switch section {
			case "peer":
				if cur == nil || !awaiting {
					flush()
					cur = &PeerStanza{}
				}
				awaiting = false
			case "interface":
				if cur != nil || len(c.Peers) > 0 {
					return nil, fmt.Errorf("line %d: [Interface] after a peer stanza", i+1)
				}
			}
			emit(line)
			continue
		}
		if cur != nil && cur.PublicKey == "" {
			if k, v, ok := keyValue(t); ok && k == "publickey" {
				cur.PublicKey = v
			}
		}
		emit(line)
	}
	if cur != nil {
		cur.Lines = append(cur.Lines, pending...)
	} else {
		c.Head = append(c.Head, pending...)
	}
	flush()
	return c, nil
}

// String serializes the config back to text.
func (c *ServerConf) String() string {
	var b strings.Builder
	first := true
	write := func(lines []string) {
		for _, line := range lines {
			if !first {
				b.WriteString("\n")
			}
			b.WriteString(line)
			first = false
		}
	}
	write(c.Head)
	for _, p := range c.Peers {
		write(p.Lines)
	}
	if c.trailingNewline && !first {
		b.WriteString("\n")
	}
	return b.String()
}

// Find returns the stanza carrying the name marker.
func (c *ServerConf) Find(name string) (PeerStanza, bool) {
	if name == "" {
		return PeerStanza{}, false
	}
	for _, p := range c.Peers {
		if p.Name == name {
			return p, true
		}
	}
	return PeerStanza{}, false
}

// FindKey returns the stanza for a peer public key.
func (c *ServerConf) FindKey(publicKey string) (PeerStanza, bool) {
	if publicKey == "" {
		return PeerStanza{}, false
	}
	for _, p := range c.Peers {
		if p.PublicKey == publicKey {
			return p, true
		}
	}
	return PeerStanza{}, false
}

// Append adds a rendered stanza after the last one, separated by a blank line.
func (c *ServerConf) Append(name, publicKey, stanza string) error {
	if _, ok := c.Find(name); ok {
		return fmt.Errorf("stanza for %q already present", name)
	}
	if _, ok := c.FindKey(publicKey); ok {
		return fmt.Errorf("stanza for public key %s already present", publicKey)
	}
	lines := strings.Split(strings.TrimRight(stanza, "\n"), "\n")
	if last, ok := c.lastLine(); ok && strings.TrimSpace(last) != "" {
		lines = append([]string{""}, lines...)
	}
	c.Peers = append(c.Peers, PeerStanza{Name: name, PublicKey: publicKey, Lines: lines})
	c.trailingNewline = true
	return nil
}

// Remove deletes the stanza matching name, falling back to publicKey.
func (c *ServerConf) Remove(name, publicKey string) (PeerStanza, bool) {
	idx := -1
	for i, p := range c.Peers {
		if name != "" && p.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 && publicKey != "" {
		for i, p := range c.Peers {
			if p.PublicKey == publicKey {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return PeerStanza{}, false
	}
	removed := c.Peers[idx]
	c.Peers = append(c.Peers[:idx], c.Peers[idx+1:]...)
	return removed, true
}

// InterfaceValue looks up a key in the [Interface] section.
func (c *ServerConf) InterfaceValue(key string) (string, bool) {
	key = strings.ToLower(key)
	inInterface := false
	for _, line := range c.Head {
		t := strings.TrimSpace(line)
		if section, ok := sectionName(t); ok {
			inInterface = section == "interface"
			continue
		}
		if !inInterface {
			continue
		}
		if k, v, ok := keyValue(t); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func (c *ServerConf) lastLine() (string, bool) {
	for i := len(c.Peers) - 1; i >= 0; i-- {
		if n := len(c.Peers[i].Lines); n > 0 {
			return c.Peers[i].Lines[n-1], true
		}
	}
	if n := len(c.Head); n > 0 {
		return c.Head[n-1], true
	}
	return "", false
}

// ConfFile is the server config on disk.
type ConfFile struct {
	Path string
}

// Load reads and parses the file. A missing file is an empty config.
func (f ConfFile) Load() (*ServerConf, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ServerConf{}, nil
		}
		return nil, err
	}
	return ParseServerConf(string(data))
}

// Save replaces the file atomically with mode 0600.
func (f ConfFile) Save(c *ServerConf) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	w, err := atomicfile.New(f.Path, 0o600)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(c.String())); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// Exists reports whether the file is present.
func (f ConfFile) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}
