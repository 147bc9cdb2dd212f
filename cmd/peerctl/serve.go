package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"peerctl/internal/config"
	"peerctl/internal/controller"
	"peerctl/internal/daemon"
	"peerctl/internal/events"
	"peerctl/internal/execx"
	"peerctl/internal/journal"
	"peerctl/internal/logging"
	"peerctl/internal/metrics"
	"peerctl/internal/model"
	"peerctl/internal/registry"
	"peerctl/internal/store"
	"peerctl/internal/wireguard"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the peer registry HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address override")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	network, err := cfg.Network()
	if err != nil {
		return err
	}

	peers, err := store.New(store.Options{
		Strategy:   cfg.Store.Strategy,
		Root:       cfg.Store.Root,
		FilePrefix: cfg.Store.FilePrefix,
		Reserved:   cfg.Store.Reserved,
	})
	if err != nil {
		return err
	}

	ctrl, inspector, closeCtrl, err := newDaemonController(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCtrl()

	bus := events.NewBus(logger)
	logEvents(bus, logger.With("component", "events"))
	collector := metrics.NewCollector()
	bus.SubscribeAll(collector.Observe)

	var journalSrc controller.EventSource
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		bus.SubscribeAll(j.Record)
		journalSrc = j
	}

	identity := &wireguard.IdentitySource{
		PublicKeyFile: cfg.WireGuard.PublicKeyFile,
		Conf:          wireguard.ConfFile{Path: cfg.WireGuard.ConfigPath},
		Endpoint:      cfg.WireGuard.Endpoint,
		ListenPort:    cfg.WireGuard.ListenPort,
		STUNServers:   cfg.WireGuard.STUNServers,
		Logger:        logger.With("component", "identity"),
	}

	reg, err := registry.New(ctx, registry.Options{
		Store:            peers,
		ServerConfigPath: cfg.WireGuard.ConfigPath,
		StatePath:        cfg.StatePath(),
		Network:          network,
		ReuseAddresses:   cfg.Registry.ReuseAddresses,
		PresharedKeys:    cfg.WireGuard.PresharedKeys,
		Client: wireguard.ClientOptions{
			DNS:          cfg.WireGuard.DNS,
			AllowedIPs:   cfg.WireGuard.ClientAllowedIPs,
			PrefixBits:   cfg.WireGuard.ClientPrefixBits,
			KeepaliveSec: cfg.WireGuard.KeepaliveSec,
		},
		Identity: identity,
		Daemon: &daemon.Syncer{
			Controller: ctrl,
			Timeout:    cfg.Daemon.SyncTimeout,
			Logger:     logger.With("component", "daemon"),
			Publisher:  bus,
		},
		Events: bus,
		Logger: logger.With("component", "registry"),
	})
	if err != nil {
		return err
	}
	collector.SetPeers(reg.Count())

	if cfg.Registry.ReconcileOnStart {
		if _, err := reg.Reconcile(ctx); err != nil {
			logger.Warn("reconcile on start failed", "error", err)
		}
	}

	srv, err := controller.NewServer(controller.Options{
		Listen:    cfg.Listen,
		Registry:  reg,
		Journal:   journalSrc,
		Inspector: inspector,
		Metrics:   collector,
		Logger:    logger.With("component", "http"),
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// newDaemonController picks how daemon calls reach WireGuard. The inspector is nil
// when live peers cannot be listed.
func newDaemonController(cfg config.Config, logger *slog.Logger) (daemon.Controller, daemon.Inspector, func(), error) {
	noop := func() {}
	iface := cfg.WireGuard.Interface
	switch cfg.Daemon.Control {
	case "command":
		m := wireguard.NewManager(execx.NewOSRunner(nil, nil), iface, cfg.Daemon.RestartMode)
		return m, m, noop, nil
	case "ssh":
		runner, err := execx.DialSSH(execx.SSHConfig{
			Host:       cfg.Daemon.SSH.Host,
			Port:       cfg.Daemon.SSH.Port,
			User:       cfg.Daemon.SSH.User,
			KeyPath:    cfg.Daemon.SSH.KeyPath,
			KnownHosts: cfg.Daemon.SSH.KnownHosts,
			Timeout:    10 * time.Second,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("daemon ssh: %w", err)
		}
		m := wireguard.NewManager(runner, iface, cfg.Daemon.RestartMode)
		return m, m, func() { _ = runner.Close() }, nil
	case "netlink":
		n, err := wireguard.NewNetlinkController(iface)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("daemon netlink: %w", err)
		}
		return n, n, func() { _ = n.Close() }, nil
	case "none":
		logger.Warn("daemon control disabled; configuration changes are written but not applied")
		return daemon.Disabled{}, nil, noop, nil
	default:
		return nil, nil, nil, errors.New("unknown daemon control " + cfg.Daemon.Control)
	}
}

// logEvents mirrors bus events to the debug log.
func logEvents(bus *events.Bus, logger *slog.Logger) {
	bus.SubscribeAll(func(ev model.Event) error {
		logger.Debug("event", "kind", ev.Kind, "peer", ev.Peer, "outcome", ev.Outcome)
		return nil
	})
}
