package wireguard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_PublicKeyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "publickey"), []byte(kp.PublicKey+"\n"), 0o600))

	src := &IdentitySource{
		PublicKeyFile: filepath.Join(dir, "publickey"),
		Conf:          ConfFile{Path: filepath.Join(dir, "wg0.conf")},
		Endpoint:      "vpn.example.net",
		ListenPort:    51820,
	}
	id, err := src.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, id.PublicKey)
	assert.Equal(t, "vpn.example.net:51820", id.Endpoint)
	assert.True(t, src.PublicKeyFileExists())
}

func TestIdentity_DerivedFromServerConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	conf := "[Interface]\nPrivateKey = " + kp.PrivateKey + "\nAddress = 10.0.0.1/24\nListenPort = 51999\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wg0.conf"), []byte(conf), 0o600))

	src := &IdentitySource{
		PublicKeyFile: filepath.Join(dir, "missing"),
		Conf:          ConfFile{Path: filepath.Join(dir, "wg0.conf")},
		Endpoint:      "203.0.113.7",
	}
	id, err := src.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, id.PublicKey)
	assert.Equal(t, 51999, id.ListenPort)
	assert.Equal(t, "203.0.113.7:51999", id.Endpoint)
	assert.False(t, src.PublicKeyFileExists())
}

func TestIdentity_ConfiguredEndpointWithPort(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wg0.conf"), []byte("[Interface]\nPrivateKey = "+kp.PrivateKey+"\n"), 0o600))

	src := &IdentitySource{Conf: ConfFile{Path: filepath.Join(dir, "wg0.conf")}, Endpoint: "[2001:db8::5]:443"}
	id, err := src.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[2001:db8::5]:443", id.Endpoint)
}

func TestIdentity_NoKeyMaterial(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := &IdentitySource{Conf: ConfFile{Path: filepath.Join(dir, "wg0.conf")}, Endpoint: "h", ListenPort: 1}
	_, err := src.Identity(context.Background())
	assert.Error(t, err)
}

func TestIdentity_InvalidKeyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "publickey"), []byte("garbage"), 0o600))
	src := &IdentitySource{
		PublicKeyFile: filepath.Join(dir, "publickey"),
		Conf:          ConfFile{Path: filepath.Join(dir, "wg0.conf")},
		Endpoint:      "h",
		ListenPort:    1,
	}
	_, err := src.Identity(context.Background())
	assert.Error(t, err)
}
