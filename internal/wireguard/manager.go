package wireguard

import (
	"context"
	"fmt"
	"os"
	"strings"

	"peerctl/internal/execx"
)

// Restart modes.
const (
	RestartWgQuick = "wg-quick"
	RestartSystemd = "systemd"
)

// Manager drives the daemon through the wg / wg-quick tools. The runner is local
// (os/exec) or remote (SSH); tests inject a recorder.
type Manager struct {
	r           execx.Runner
	iface       string
	restartMode string
}

func NewManager(r execx.Runner, iface, restartMode string) *Manager {
	if r == nil {
		r = execx.NewOSRunner(os.Stdout, os.Stderr)
	}
	if restartMode == "" {
		restartMode = RestartWgQuick
	}
	return &Manager{r: r, iface: iface, restartMode: restartMode}
}

// Apply pushes the server config to the running interface without a restart.
// wg-quick-only keys are stripped first since `wg syncconf` rejects them.
func (m *Manager) Apply(ctx context.Context, conf string) error {
	if m.iface == "" {
		return fmt.Errorf("wireguard interface is required")
	}
	return m.r.RunInput(ctx, StripQuick(conf), "wg", "syncconf", m.iface, "/dev/stdin")
}

// Restart takes the interface down and back up, then pushes conf with
// syncconf. wg-quick rereads the config file on the host it runs on, which for
// a remote runner is not the file this process writes.
func (m *Manager) Restart(ctx context.Context, conf string) error {
	if m.iface == "" {
		return fmt.Errorf("wireguard interface is required")
	}
	if err := m.cycle(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(conf) == "" {
		return nil
	}
	if err := m.Apply(ctx, conf); err != nil {
		return fmt.Errorf("wg syncconf after restart: %w", err)
	}
	return nil
}

func (m *Manager) cycle(ctx context.Context) error {
	if m.restartMode == RestartSystemd {
		return m.r.Run(ctx, "systemctl", "restart", "wg-quick@"+m.iface)
	}
	if err := m.r.Run(ctx, "wg-quick", "down", m.iface); err != nil {
		if ctx.Err() != nil {
			return err
		}
		// An interface that is not up yet is fine.
		if !strings.Contains(err.Error(), "is not a WireGuard interface") && !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("wg-quick down: %w", err)
		}
	}
	if err := m.r.Run(ctx, "wg-quick", "up", m.iface); err != nil {
		return fmt.Errorf("wg-quick up: %w", err)
	}
	return nil
}
