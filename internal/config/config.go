package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"peerctl/internal/logging"
)

const (
	DefaultListen          = ":5000"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultInterface       = "wg0"
	DefaultConfigPath      = "/etc/wireguard/wg0.conf"
	DefaultPublicKeyFile   = "/etc/wireguard/publickey"
	DefaultListenPort      = 51820
	DefaultNetwork         = "10.0.0.0/24"
	DefaultDNS             = "8.8.8.8"
	DefaultClientAllowedIP = "0.0.0.0/0"
	DefaultClientPrefix    = 32
	DefaultStoreStrategy   = "flat"
	DefaultStoreRoot       = "/etc/wireguard/clients"
	DefaultFilePrefix      = "peer_"
	DefaultStateFileName   = ".registry.yaml"
	DefaultDaemonControl   = "command"
	DefaultSyncTimeout     = 30 * time.Second
	DefaultRestartMode     = "wg-quick"
	DefaultSSHPort         = 22
	DefaultSSHUser         = "root"

	envPrefix  = "PEERCTL"
	configName = "peerctl"
)

// Config holds every setting of the peerctl server.
type Config struct {
	Listen    string          `yaml:"listen" mapstructure:"listen"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	WireGuard WireGuardConfig `yaml:"wireguard" mapstructure:"wireguard"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Daemon    DaemonConfig    `yaml:"daemon" mapstructure:"daemon"`
	Journal   JournalConfig   `yaml:"journal" mapstructure:"journal"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type WireGuardConfig struct {
	Interface        string   `yaml:"interface" mapstructure:"interface"`
	ConfigPath       string   `yaml:"config_path" mapstructure:"config_path"`
	PublicKeyFile    string   `yaml:"public_key_file" mapstructure:"public_key_file"`
	ListenPort       int      `yaml:"listen_port" mapstructure:"listen_port"`
	Endpoint         string   `yaml:"endpoint" mapstructure:"endpoint"`
	STUNServers      []string `yaml:"stun_servers" mapstructure:"stun_servers"`
	Network          string   `yaml:"network" mapstructure:"network"`
	DNS              string   `yaml:"dns" mapstructure:"dns"`
	ClientAllowedIPs []string `yaml:"client_allowed_ips" mapstructure:"client_allowed_ips"`
	ClientPrefixBits int      `yaml:"client_prefix_bits" mapstructure:"client_prefix_bits"`
	KeepaliveSec     int      `yaml:"keepalive_sec" mapstructure:"keepalive_sec"`
	PresharedKeys    bool     `yaml:"preshared_keys" mapstructure:"preshared_keys"`
}

type StoreConfig struct {
	Strategy   string   `yaml:"strategy" mapstructure:"strategy"`
	Root       string   `yaml:"root" mapstructure:"root"`
	FilePrefix string   `yaml:"file_prefix" mapstructure:"file_prefix"`
	Reserved   []string `yaml:"reserved" mapstructure:"reserved"`
	StatePath  string   `yaml:"state_path" mapstructure:"state_path"`
}

type RegistryConfig struct {
	ReuseAddresses   bool `yaml:"reuse_addresses" mapstructure:"reuse_addresses"`
	ReconcileOnStart bool `yaml:"reconcile_on_start" mapstructure:"reconcile_on_start"`
}

type DaemonConfig struct {
	Control     string        `yaml:"control" mapstructure:"control"`
	SyncTimeout time.Duration `yaml:"sync_timeout" mapstructure:"sync_timeout"`
	RestartMode string        `yaml:"restart_mode" mapstructure:"restart_mode"`
	SSH         SSHConfig     `yaml:"ssh" mapstructure:"ssh"`
}

type SSHConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	User       string `yaml:"user" mapstructure:"user"`
	KeyPath    string `yaml:"key_path" mapstructure:"key_path"`
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`
}

type JournalConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Default returns a config with every default applied.
func Default() Config {
	cfg := Config{Registry: RegistryConfig{ReconcileOnStart: true}}
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads the config file at path, or searches /etc/peerctl, $HOME/.peerctl and the
// working directory for peerctl.yaml when path is empty. PEERCTL_* environment
// variables override file values (PEERCTL_WIREGUARD_NETWORK for wireguard.network).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/peerctl")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".peerctl"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("wireguard.interface", d.WireGuard.Interface)
	v.SetDefault("wireguard.config_path", d.WireGuard.ConfigPath)
	v.SetDefault("wireguard.public_key_file", d.WireGuard.PublicKeyFile)
	v.SetDefault("wireguard.listen_port", d.WireGuard.ListenPort)
	v.SetDefault("wireguard.endpoint", "")
	v.SetDefault("wireguard.stun_servers", []string{})
	v.SetDefault("wireguard.network", d.WireGuard.Network)
	v.SetDefault("wireguard.dns", d.WireGuard.DNS)
	v.SetDefault("wireguard.client_allowed_ips", d.WireGuard.ClientAllowedIPs)
	v.SetDefault("wireguard.client_prefix_bits", d.WireGuard.ClientPrefixBits)
	v.SetDefault("wireguard.keepalive_sec", 0)
	v.SetDefault("wireguard.preshared_keys", false)
	v.SetDefault("store.strategy", d.Store.Strategy)
	v.SetDefault("store.root", d.Store.Root)
	v.SetDefault("store.file_prefix", d.Store.FilePrefix)
	v.SetDefault("store.reserved", d.Store.Reserved)
	v.SetDefault("store.state_path", "")
	v.SetDefault("registry.reuse_addresses", false)
	v.SetDefault("registry.reconcile_on_start", true)
	v.SetDefault("daemon.control", d.Daemon.Control)
	v.SetDefault("daemon.sync_timeout", d.Daemon.SyncTimeout)
	v.SetDefault("daemon.restart_mode", d.Daemon.RestartMode)
	v.SetDefault("daemon.ssh.host", "")
	v.SetDefault("daemon.ssh.port", d.Daemon.SSH.Port)
	v.SetDefault("daemon.ssh.user", d.Daemon.SSH.User)
	v.SetDefault("daemon.ssh.key_path", "")
	v.SetDefault("daemon.ssh.known_hosts", "")
	v.SetDefault("journal.path", "")
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the settings the server cannot start without.
func Validate(cfg Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if f := cfg.Log.Format; f != logging.FormatText && f != logging.FormatJSON {
		return fmt.Errorf("log.format must be text or json, got %q", f)
	}
	if cfg.WireGuard.Interface == "" {
		return fmt.Errorf("wireguard.interface is required")
	}
	if cfg.WireGuard.ConfigPath == "" {
		return fmt.Errorf("wireguard.config_path is required")
	}
	if _, err := cfg.Network(); err != nil {
		return err
	}
	if b := cfg.WireGuard.ClientPrefixBits; b < 1 || b > 32 {
		return fmt.Errorf("wireguard.client_prefix_bits must be 1-32, got %d", b)
	}
	for _, cidr := range cfg.WireGuard.ClientAllowedIPs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("wireguard.client_allowed_ips: %w", err)
		}
	}
	if cfg.WireGuard.ListenPort < 0 || cfg.WireGuard.ListenPort > 65535 {
		return fmt.Errorf("wireguard.listen_port out of range")
	}
	if cfg.Store.Root == "" {
		return fmt.Errorf("store.root is required")
	}
	switch cfg.Store.Strategy {
	case "flat", "dir":
	default:
		return fmt.Errorf("store.strategy must be flat or dir, got %q", cfg.Store.Strategy)
	}
	switch cfg.Daemon.Control {
	case "command", "netlink", "none":
	case "ssh":
		if cfg.Daemon.SSH.Host == "" {
			return fmt.Errorf("daemon.ssh.host is required when daemon.control is ssh")
		}
	default:
		return fmt.Errorf("daemon.control must be command, ssh, netlink or none, got %q", cfg.Daemon.Control)
	}
	switch cfg.Daemon.RestartMode {
	case "wg-quick", "systemd":
	default:
		return fmt.Errorf("daemon.restart_mode must be wg-quick or systemd, got %q", cfg.Daemon.RestartMode)
	}
	if cfg.Daemon.SyncTimeout <= 0 {
		return fmt.Errorf("daemon.sync_timeout must be positive")
	}
	return nil
}

// Network parses wireguard.network. Only IPv4 networks with room for a server and
// at least one peer are accepted; the prefix is masked.
func (c Config) Network() (netip.Prefix, error) {
	p, err := netip.ParsePrefix(c.WireGuard.Network)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("wireguard.network: %w", err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("wireguard.network must be IPv4, got %s", p)
	}
	if p.Bits() > 30 {
		return netip.Prefix{}, fmt.Errorf("wireguard.network %s is too small", p)
	}
	return p.Masked(), nil
}

// StatePath is store.state_path, defaulting to a hidden file in the store root.
func (c Config) StatePath() string {
	if c.Store.StatePath != "" {
		return c.Store.StatePath
	}
	return filepath.Join(c.Store.Root, DefaultStateFileName)
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	wg := &cfg.WireGuard
	if wg.Interface == "" {
		wg.Interface = DefaultInterface
	}
	if wg.ConfigPath == "" {
		wg.ConfigPath = DefaultConfigPath
	}
	if wg.PublicKeyFile == "" {
		wg.PublicKeyFile = DefaultPublicKeyFile
	}
	if wg.ListenPort == 0 {
		wg.ListenPort = DefaultListenPort
	}
	if wg.Network == "" {
		wg.Network = DefaultNetwork
	}
	if wg.DNS == "" {
		wg.DNS = DefaultDNS
	}
	if len(wg.ClientAllowedIPs) == 0 {
		wg.ClientAllowedIPs = []string{DefaultClientAllowedIP}
	}
	if wg.ClientPrefixBits == 0 {
		wg.ClientPrefixBits = DefaultClientPrefix
	}

	if cfg.Store.Strategy == "" {
		cfg.Store.Strategy = DefaultStoreStrategy
	}
	if cfg.Store.Root == "" {
		cfg.Store.Root = DefaultStoreRoot
	}
	if cfg.Store.FilePrefix == "" {
		cfg.Store.FilePrefix = DefaultFilePrefix
	}
	if cfg.Store.Reserved == nil {
		cfg.Store.Reserved = []string{"server"}
	}

	if cfg.Daemon.Control == "" {
		cfg.Daemon.Control = DefaultDaemonControl
	}
	if cfg.Daemon.SyncTimeout == 0 {
		cfg.Daemon.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.Daemon.RestartMode == "" {
		cfg.Daemon.RestartMode = DefaultRestartMode
	}
	if cfg.Daemon.SSH.Port == 0 {
		cfg.Daemon.SSH.Port = DefaultSSHPort
	}
	if cfg.Daemon.SSH.User == "" {
		cfg.Daemon.SSH.User = DefaultSSHUser
	}
}
