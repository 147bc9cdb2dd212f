package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"peerctl/internal/model"
)

// Key file names inside a peer directory.
const (
	PrivateKeyFile   = "privatekey"
	PublicKeyFile    = "publickey"
	PresharedKeyFile = "presharedkey"
)

// DirStore keeps one directory per peer holding its key files and "<name>.conf".
type DirStore struct {
	root     string
	reserved map[string]bool
}

func NewDirStore(root string, reserved []string) *DirStore {
	return &DirStore{root: root, reserved: reservedSet(reserved)}
}

func (s *DirStore) Root() string { return s.root }

func (s *DirStore) ConfigFile(name string) string {
	return filepath.Join(name, name+confExt)
}

func (s *DirStore) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || s.reserved[name] || !ValidName(name) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, s.ConfigFile(name))); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Save writes every file of the peer. A failure removes the directory again.
func (s *DirStore) Save(peer model.Peer) (string, error) {
	if !ValidName(peer.Name) {
		return "", fmt.Errorf("invalid peer name %q", peer.Name)
	}
	if err := ensureRoot(s.root); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, peer.Name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", err
	}

	files := []struct {
		name    string
		content string
	}{
		{PrivateKeyFile, peer.PrivateKey},
		{PublicKeyFile, peer.PublicKey},
		{PresharedKeyFile, peer.PresharedKey},
		{peer.Name + confExt, peer.ClientConfig},
	}
	for _, f := range files {
		if f.content == "" && f.name == PresharedKeyFile {
			continue
		}
		data := f.content
		if !strings.HasSuffix(data, "\n") {
			data += "\n"
		}
		if err := WriteFile(filepath.Join(dir, f.name), []byte(data), 0o600); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return s.ConfigFile(peer.Name), nil
}

func (s *DirStore) Load(name string) (model.Peer, error) {
	dir := filepath.Join(s.root, name)
	conf := filepath.Join(s.root, s.ConfigFile(name))
	data, err := os.ReadFile(conf)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Peer{}, ErrNotFound
		}
		return model.Peer{}, err
	}
	peer := model.Peer{
		Name:         name,
		ConfigFile:   s.ConfigFile(name),
		ClientConfig: string(data),
		PrivateKey:   readTrimmed(filepath.Join(dir, PrivateKeyFile)),
		PublicKey:    readTrimmed(filepath.Join(dir, PublicKeyFile)),
		PresharedKey: readTrimmed(filepath.Join(dir, PresharedKeyFile)),
	}
	if info, err := os.Stat(conf); err == nil {
		peer.CreatedAt = info.ModTime().UTC()
	}
	return peer, nil
}

func (s *DirStore) Delete(name string) error {
	dir := filepath.Join(s.root, name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return os.RemoveAll(dir)
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
