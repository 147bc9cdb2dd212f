package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the registry bookkeeping that does not live in any peer file.
type State struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	// Network the cursor was allocated in; a changed network restarts the cursor.
	Network string `yaml:"network"`
	// NextHost is the host index handed to the next peer. It never moves backwards.
	NextHost int `yaml:"next_host"`
}

// LoadState loads the state file. If the file is missing, returns an empty state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{}, nil
		}
		return nil, err
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveState writes the state file atomically.
func SaveState(path string, st *State) error {
	if st == nil {
		return nil
	}
	st.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return WriteFile(path, data, 0o600)
}
