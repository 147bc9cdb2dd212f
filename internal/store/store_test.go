package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerctl/internal/model"
)

func samplePeer(name string) model.Peer {
	return model.Peer{
		Name:         name,
		PrivateKey:   "priv-" + name,
		PublicKey:    "pub-" + name,
		ClientConfig: "[Interface]\nPrivateKey = priv-" + name + "\n",
	}
}

func TestNew_Strategies(t *testing.T) {
	t.Parallel()

	s, err := New(Options{Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FlatStore{}, s)

	s, err = New(Options{Strategy: StrategyDir, Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &DirStore{}, s)

	_, err = New(Options{Strategy: "sqlite", Root: t.TempDir()})
	assert.Error(t, err)
	_, err = New(Options{})
	assert.Error(t, err)
}

func TestFlatStore_Lifecycle(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "clients")
	s := NewFlatStore(root, "peer_", []string{"server"})

	_, err := s.List()
	require.Error(t, err, "missing root")

	rel, err := s.Save(samplePeer("alice"))
	require.NoError(t, err)
	assert.Equal(t, "peer_alice.conf", rel)
	_, err = s.Save(samplePeer("bob"))
	require.NoError(t, err)
	_, err = s.Save(samplePeer("server"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "peer_Bad Name.conf"), []byte("x"), 0o600))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)

	ok, err := s.Exists("alice")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "[Interface]\nPrivateKey = priv-alice\n", p.ClientConfig)
	assert.Equal(t, "peer_alice.conf", p.ConfigFile)

	info, err := os.Stat(filepath.Join(root, "peer_alice.conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, s.Delete("alice"))
	assert.ErrorIs(t, s.Delete("alice"), ErrNotFound)
	_, err = s.Load("alice")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = s.Exists("alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlatStore_RejectsInvalidName(t *testing.T) {
	t.Parallel()

	s := NewFlatStore(t.TempDir(), "peer_", nil)
	_, err := s.Save(samplePeer("../escape"))
	assert.Error(t, err)
}

func TestDirStore_Lifecycle(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := NewDirStore(root, []string{"server"})

	peer := samplePeer("carol")
	peer.PresharedKey = "psk-carol"
	rel, err := s.Save(peer)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("carol", "carol.conf"), rel)

	_, err = s.Save(samplePeer("dave"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "server"), 0o700))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0o700))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o700))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, names)

	ok, err := s.Exists("empty")
	require.NoError(t, err)
	assert.True(t, ok, "a bare directory still blocks the name")

	got, err := s.Load("carol")
	require.NoError(t, err)
	assert.Equal(t, "priv-carol", got.PrivateKey)
	assert.Equal(t, "pub-carol", got.PublicKey)
	assert.Equal(t, "psk-carol", got.PresharedKey)

	d, err := s.Load("dave")
	require.NoError(t, err)
	assert.Empty(t, d.PresharedKey)
	_, err = os.Stat(filepath.Join(root, "dave", PresharedKeyFile))
	assert.True(t, os.IsNotExist(err))

	_, err = s.Save(samplePeer("carol"))
	assert.Error(t, err, "existing directory")

	require.NoError(t, s.Delete("carol"))
	assert.ErrorIs(t, s.Delete("carol"), ErrNotFound)
	_, err = os.Stat(filepath.Join(root, "carol"))
	assert.True(t, os.IsNotExist(err))
}

func TestState_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", ".registry.yaml")
	st, err := LoadState(path)
	require.NoError(t, err)
	assert.Zero(t, st.NextHost)

	require.NoError(t, SaveState(path, &State{Network: "10.0.0.0/24", NextHost: 7}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	st, err = LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, 7, st.NextHost)
	assert.Equal(t, "10.0.0.0/24", st.Network)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestValidName(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidName("client-1_a"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("Upper"))
	assert.False(t, ValidName("a/b"))
	assert.False(t, ValidName(".."))
}
