package wireguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleServerConf = `[Interface]
# managed by hand
PrivateKey = cHJpdmF0ZQ==
Address = 10.0.0.1/24
ListenPort = 51820

# Client: alice
[Peer]
PublicKey = alicepub
AllowedIPs = 10.0.0.2/32

[Peer]
PublicKey = legacypub
AllowedIPs = 10.0.0.9/32

# Client: bob
[Peer]
PublicKey = bobpub
AllowedIPs = 10.0.0.3/32
`

func TestParseServerConf_RoundTripsUntouchedText(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		sampleServerConf,
		"",
		"[Interface]\nPrivateKey = x",
		sampleServerConf + "\n\n",
	} {
		c, err := ParseServerConf(text)
		require.NoError(t, err)
		assert.Equal(t, text, c.String())
	}
}

func TestParseServerConf_Stanzas(t *testing.T) {
	t.Parallel()

	c, err := ParseServerConf(sampleServerConf)
	require.NoError(t, err)
	require.Len(t, c.Peers, 3)

	assert.Equal(t, "alice", c.Peers[0].Name)
	assert.Equal(t, "alicepub", c.Peers[0].PublicKey)
	assert.Equal(t, "", c.Peers[1].Name)
	assert.Equal(t, "legacypub", c.Peers[1].PublicKey)
	assert.Equal(t, "10.0.0.9/32", c.Peers[1].Value("AllowedIPs"))
	assert.Equal(t, "bob", c.Peers[2].Name)

	v, ok := c.InterfaceValue("privatekey")
	require.True(t, ok)
	assert.Equal(t, "cHJpdmF0ZQ==", v)
	v, _ = c.InterfaceValue("Address")
	assert.Equal(t, "10.0.0.1/24", v)
	_, ok = c.InterfaceValue("DNS")
	assert.False(t, ok)
}

func TestParseServerConf_RejectsLateInterface(t *testing.T) {
	t.Parallel()

	_, err := ParseServerConf("[Peer]\nPublicKey = a\n[Interface]\nPrivateKey = b\n")
	assert.Error(t, err)
}

func TestServerConf_AppendAndRemove(t *testing.T) {
	t.Parallel()

	c, err := ParseServerConf("[Interface]\nPrivateKey = x\nListenPort = 51820\n")
	require.NoError(t, err)

	require.NoError(t, c.Append("carol", "carolpub", "# Client: carol\n[Peer]\nPublicKey = carolpub\nAllowedIPs = 10.0.0.2/32\n"))
	want := "[Interface]\nPrivateKey = x\nListenPort = 51820\n\n# Client: carol\n[Peer]\nPublicKey = carolpub\nAllowedIPs = 10.0.0.2/32\n"
	assert.Equal(t, want, c.String())

	assert.Error(t, c.Append("carol", "otherpub", "# Client: carol\n"))
	assert.Error(t, c.Append("dave", "carolpub", "# Client: dave\n"))

	removed, ok := c.Remove("carol", "")
	require.True(t, ok)
	assert.Equal(t, "carolpub", removed.PublicKey)
	assert.Equal(t, "[Interface]\nPrivateKey = x\nListenPort = 51820\n", c.String())

	_, ok = c.Remove("carol", "carolpub")
	assert.False(t, ok)
}

func TestServerConf_RemoveKeepsNeighbours(t *testing.T) {
	t.Parallel()

	c, err := ParseServerConf(sampleServerConf)
	require.NoError(t, err)

	_, ok := c.Remove("alice", "")
	require.True(t, ok)
	want := `[Interface]
# managed by hand
PrivateKey = cHJpdmF0ZQ==
Address = 10.0.0.1/24
ListenPort = 51820

[Peer]
PublicKey = legacypub
AllowedIPs = 10.0.0.9/32

# Client: bob
[Peer]
PublicKey = bobpub
AllowedIPs = 10.0.0.3/32
`
	assert.Equal(t, want, c.String())

	// unmarked stanzas are matched by public key
	_, ok = c.Remove("legacy", "legacypub")
	require.True(t, ok)
	require.Len(t, c.Peers, 1)
	assert.Equal(t, "bob", c.Peers[0].Name)
}

func TestConfFile_LoadSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wg0.conf")
	f := ConfFile{Path: path}
	assert.False(t, f.Exists())

	c, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, c.String())

	require.NoError(t, c.Append("a", "apub", "# Client: a\n[Peer]\nPublicKey = apub\nAllowedIPs = 10.0.0.2/32\n"))
	require.NoError(t, f.Save(c))
	assert.True(t, f.Exists())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.String(), string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
