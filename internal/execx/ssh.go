package execx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to reach a remote host running the WireGuard daemon.
type SSHConfig struct {
	Host       string
	Port       int
	User       string
	KeyPath    string
	KnownHosts string
	Timeout    time.Duration
}

// SSHRunner executes commands on a remote host. Each call opens its own session.
type SSHRunner struct {
	conn *ssh.Client
}

// DialSSH connects to the remote host. Authentication uses the SSH agent when
// SSH_AUTH_SOCK is set, plus the configured private key.
func DialSSH(cfg SSHConfig) (*SSHRunner, error) {
	if cfg.Host == "" {
		return nil, errors.New("ssh host is required")
	}
	var authMethods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if len(authMethods) == 0 {
		return nil, errors.New("no ssh auth method available (set key_path or SSH_AUTH_SOCK)")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	user := cfg.User
	if user == "" {
		user = "root"
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := ssh.Dial("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(port)), &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	return &SSHRunner{conn: conn}, nil
}

func (r *SSHRunner) Close() error {
	return r.conn.Close()
}

func (r *SSHRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.exec(ctx, "", name, args...)
	return err
}

func (r *SSHRunner) RunInput(ctx context.Context, input string, name string, args ...string) error {
	_, err := r.exec(ctx, input, name, args...)
	return err
}

func (r *SSHRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := r.exec(ctx, "", name, args...)
	return strings.TrimSpace(out), err
}

func (r *SSHRunner) exec(ctx context.Context, input string, name string, args ...string) (string, error) {
	session, err := r.conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	if input != "" {
		session.Stdin = strings.NewReader(input)
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(ShellQuote(name, args...))
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			msg := strings.TrimSpace(string(res.out))
			if msg != "" {
				return string(res.out), fmt.Errorf("%s: %s", res.err.Error(), msg)
			}
			return string(res.out), res.err
		}
		return string(res.out), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("%s: %w", name, ctx.Err())
	}
}
