package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"peerctl/internal/api"
	"peerctl/internal/config"
)

const defaultServer = "http://127.0.0.1:5000"

type rootOptions struct {
	configPath string
	server     string
}

func main() {
	ctx, cancel := signalContext()
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "peerctl",
		Short:         "WireGuard peer directory and control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (default: search /etc/peerctl, ~/.peerctl, .)")
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("PEERCTL_SERVER", defaultServer), "peerctl API base URL")

	root.AddCommand(
		newServeCmd(opts),
		newPeerCmd(opts),
		newServerInfoCmd(opts),
		newReloadCmd(opts),
		newEventsCmd(opts),
		newConfigCmd(opts),
		newJournalCmd(opts),
	)
	return root
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) client() *api.Client {
	return api.NewClient(normalizeBaseURL(o.server))
}

func normalizeBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
