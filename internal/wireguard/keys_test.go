package wireguard

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair_DerivesPublicKey(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Len(t, kp.PrivateKey, 44)
	assert.Len(t, kp.PublicKey, 44)

	pub, err := PublicKey(kp.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey, pub)

	raw, err := base64.StdEncoding.DecodeString(kp.PrivateKey)
	require.NoError(t, err)
	assert.Zero(t, raw[0]&7, "low bits not clamped")
	assert.Equal(t, byte(64), raw[31]&0xc0, "high bits not clamped")
}

func TestGenerateKeyPair_Distinct(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)
		require.False(t, seen[kp.PrivateKey], "duplicate private key")
		seen[kp.PrivateKey] = true
	}
}

func TestGeneratePresharedKey(t *testing.T) {
	t.Parallel()

	a, err := GeneratePresharedKey()
	require.NoError(t, err)
	b, err := GeneratePresharedKey()
	require.NoError(t, err)
	assert.True(t, ValidKey(a))
	assert.NotEqual(t, a, b)
}

func TestPublicKey_RejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := PublicKey("not base64!")
	assert.Error(t, err)
	_, err = PublicKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
	assert.False(t, ValidKey(""))
}
