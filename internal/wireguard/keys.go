package wireguard

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyLen is the raw size of every WireGuard key.
const KeyLen = 32

// KeyPair is a base64 encoded Curve25519 key pair.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeyPair creates a fresh key pair from crypto/rand.
func GenerateKeyPair() (KeyPair, error) {
	priv := make([]byte, KeyLen)
	if _, err := rand.Read(priv); err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	clampPrivateKey(priv)

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to derive public key: %w", err)
	}

	return KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// GeneratePresharedKey returns an independent symmetric key.
func GeneratePresharedKey() (string, error) {
	psk := make([]byte, KeyLen)
	if _, err := rand.Read(psk); err != nil {
		return "", fmt.Errorf("failed to generate preshared key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(psk), nil
}

// PublicKey derives the public half of a base64 private key.
func PublicKey(privateKey string) (string, error) {
	priv, err := decodeKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	clampPrivateKey(priv)

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("failed to derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// ValidKey reports whether s is a base64 encoded 32-byte key.
func ValidKey(s string) bool {
	_, err := decodeKey(s)
	return err == nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != KeyLen {
		return nil, fmt.Errorf("key has %d bytes, want %d", len(b), KeyLen)
	}
	return b, nil
}

func clampPrivateKey(key []byte) {
	key[0] &= 248
	key[31] &= 127
	key[31] |= 64
}
