package store

import (
	"errors"
	"fmt"
	"os"

	"peerctl/internal/model"
)

// Strategies.
const (
	StrategyFlat = "flat"
	StrategyDir  = "dir"
)

var ErrNotFound = errors.New("peer not found in store")

// Store is the durable home of peer files under a root directory.
type Store interface {
	Root() string
	// Exists reports whether any file or directory for name is present.
	Exists(name string) (bool, error)
	// List returns peer names in directory order, reserved entries excluded.
	List() ([]string, error)
	// Save writes the client config (and key files, if the layout keeps them)
	// and returns the config path relative to Root.
	Save(peer model.Peer) (string, error)
	// Load returns the stored peer with ClientConfig and ConfigFile filled in.
	Load(name string) (model.Peer, error)
	Delete(name string) error
	ConfigFile(name string) string
}

// Options configure New.
type Options struct {
	Strategy   string
	Root       string
	FilePrefix string
	Reserved   []string
}

func New(opts Options) (Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	switch opts.Strategy {
	case "", StrategyFlat:
		return NewFlatStore(opts.Root, opts.FilePrefix, opts.Reserved), nil
	case StrategyDir:
		return NewDirStore(opts.Root, opts.Reserved), nil
	default:
		return nil, fmt.Errorf("unknown store strategy %q", opts.Strategy)
	}
}

// ValidName reports whether name only uses [a-z0-9_-].
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return false
		}
	}
	return true
}

func reservedSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func ensureRoot(root string) error {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return fmt.Errorf("create store root: %w", err)
	}
	return nil
}
