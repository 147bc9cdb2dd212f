package wireguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"peerctl/internal/addrutil"
	"peerctl/internal/model"
	"peerctl/internal/stunutil"
)

const stunTimeout = 3 * time.Second

// IdentitySource resolves the server public key and the endpoint peers dial.
type IdentitySource struct {
	PublicKeyFile string
	Conf          ConfFile
	Endpoint      string // host or host:port; empty means discover
	ListenPort    int
	STUNServers   []string
	Logger        *slog.Logger

	mu       sync.Mutex
	resolved string
}

// Identity returns the current server identity. The public key is read on every
// call; a discovered endpoint is cached after the first success.
func (s *IdentitySource) Identity(ctx context.Context) (model.ServerIdentity, error) {
	conf, err := s.Conf.Load()
	if err != nil {
		return model.ServerIdentity{}, fmt.Errorf("read server config: %w", err)
	}

	pub, err := s.publicKey(conf)
	if err != nil {
		return model.ServerIdentity{}, err
	}

	port := s.ListenPort
	if port <= 0 {
		if v, ok := conf.InterfaceValue("ListenPort"); ok {
			port, _ = strconv.Atoi(v)
		}
	}

	endpoint, err := s.endpoint(ctx, port)
	if err != nil {
		return model.ServerIdentity{}, err
	}
	return model.ServerIdentity{PublicKey: pub, Endpoint: endpoint, ListenPort: port}, nil
}

// PublicKeyFileExists reports whether the public key file is present.
func (s *IdentitySource) PublicKeyFileExists() bool {
	if s.PublicKeyFile == "" {
		return false
	}
	_, err := os.Stat(s.PublicKeyFile)
	return err == nil
}

func (s *IdentitySource) publicKey(conf *ServerConf) (string, error) {
	if s.PublicKeyFile != "" {
		data, err := os.ReadFile(s.PublicKeyFile)
		switch {
		case err == nil:
			if key := strings.TrimSpace(string(data)); key != "" {
				if !ValidKey(key) {
					return "", fmt.Errorf("public key file %s: not a WireGuard key", s.PublicKeyFile)
				}
				return key, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("read public key file: %w", err)
		}
	}

	priv, ok := conf.InterfaceValue("PrivateKey")
	if !ok || priv == "" {
		return "", fmt.Errorf("server public key unavailable: no key file and no [Interface] PrivateKey in %s", s.Conf.Path)
	}
	pub, err := PublicKey(priv)
	if err != nil {
		return "", fmt.Errorf("server private key: %w", err)
	}
	return pub, nil
}

func (s *IdentitySource) endpoint(ctx context.Context, port int) (string, error) {
	if ep, ok := addrutil.Endpoint(s.Endpoint, "", port); ok && addrutil.Host(s.Endpoint) != "" {
		return ep, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved != "" {
		return s.resolved, nil
	}

	discovered := s.discover(ctx)
	ep, ok := addrutil.Endpoint("", discovered, port)
	if !ok {
		return "", fmt.Errorf("server endpoint unknown: set wireguard.endpoint")
	}
	s.resolved = ep
	return ep, nil
}

func (s *IdentitySource) discover(ctx context.Context) string {
	logger := s.logger()
	if len(s.STUNServers) > 0 {
		m, err := stunutil.PublicIP(ctx, s.STUNServers, stunTimeout)
		if err == nil {
			if m.PortShifts {
				logger.Warn("NAT mapping differs per destination; peers may not reach the listen port", "ip", m.IP)
			}
			logger.Info("discovered public address", "ip", m.IP, "answers", m.Answers)
			return m.IP.String()
		}
		logger.Warn("STUN discovery failed", "error", err)
	}
	ip, err := addrutil.OutboundIP(ctx)
	if err != nil {
		logger.Warn("outbound address detection failed", "error", err)
		return ""
	}
	return ip
}

func (s *IdentitySource) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
