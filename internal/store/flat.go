package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"peerctl/internal/model"
)

const confExt = ".conf"

// FlatStore keeps one "<prefix><name>.conf" file per peer directly under Root.
type FlatStore struct {
	root     string
	prefix   string
	reserved map[string]bool
}

func NewFlatStore(root, prefix string, reserved []string) *FlatStore {
	return &FlatStore{root: root, prefix: prefix, reserved: reservedSet(reserved)}
}

func (s *FlatStore) Root() string { return s.root }

func (s *FlatStore) ConfigFile(name string) string {
	return s.prefix + name + confExt
}

func (s *FlatStore) path(name string) string {
	return filepath.Join(s.root, s.ConfigFile(name))
}

func (s *FlatStore) Exists(name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FlatStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file := e.Name()
		if !strings.HasPrefix(file, s.prefix) || !strings.HasSuffix(file, confExt) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(file, s.prefix), confExt)
		if !ValidName(name) || s.reserved[name] {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *FlatStore) Save(peer model.Peer) (string, error) {
	if !ValidName(peer.Name) {
		return "", fmt.Errorf("invalid peer name %q", peer.Name)
	}
	if err := ensureRoot(s.root); err != nil {
		return "", err
	}
	if err := WriteFile(s.path(peer.Name), []byte(peer.ClientConfig), 0o600); err != nil {
		return "", err
	}
	return s.ConfigFile(peer.Name), nil
}

func (s *FlatStore) Load(name string) (model.Peer, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Peer{}, ErrNotFound
		}
		return model.Peer{}, err
	}
	peer := model.Peer{Name: name, ConfigFile: s.ConfigFile(name), ClientConfig: string(data)}
	if info, err := os.Stat(s.path(name)); err == nil {
		peer.CreatedAt = info.ModTime().UTC()
	}
	return peer, nil
}

func (s *FlatStore) Delete(name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
