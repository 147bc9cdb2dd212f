package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerctl/internal/config"
)

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://10.0.0.1:5000", normalizeBaseURL("10.0.0.1:5000"))
	assert.Equal(t, "https://vpn.example.net", normalizeBaseURL("https://vpn.example.net"))
}

func TestConfigInit(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "peerctl.yaml")
	run := func(args ...string) error {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	require.NoError(t, run("config", "init", "--out", out))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Error(t, run("config", "init", "--out", out), "refuses to overwrite")
	require.NoError(t, run("config", "init", "--out", out, "--force"))

	cfg, err := config.Load(out)
	require.NoError(t, err)
	assert.NoError(t, config.Validate(cfg))
	require.NoError(t, run("--config", out, "config", "check"))
}
