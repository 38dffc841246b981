package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hostlint/hostlint/internal/inventory"
	"github.com/hostlint/hostlint/internal/models"
	"golang.org/x/crypto/ssh"
)

// SSHTransport runs probe commands on a remote host over one pooled
// SSH connection, opening a fresh session per command. The connection
// belongs to a single run and is never shared across runs.
type SSHTransport struct {
	host inventory.Host

	mu     sync.Mutex
	client *ssh.Client
}

func NewSSHTransport(host inventory.Host) *SSHTransport {
	return &SSHTransport{host: host}
}

// Connect dials the host. A connect failure is independent of any
// individual command: callers mark every rule for the host UNDEF.
func (t *SSHTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return nil
	}

	cfg, err := t.clientConfig()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(t.host.Address, fmt.Sprint(t.host.PortOrDefault()))
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("host unreachable: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	t.client = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

func (t *SSHTransport) clientConfig() (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if t.host.KeyFile != "" {
		key, err := os.ReadFile(t.host.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %s: %w", t.host.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", t.host.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if t.host.Password != "" {
		methods = append(methods, ssh.Password(t.host.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("host has neither ssh key nor password configured")
	}

	timeout := time.Duration(t.host.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ssh.ClientConfig{
		User: t.host.UserOrDefault(),
		Auth: methods,
		// Audited fleets rarely have curated known_hosts files; host
		// key pinning is the inventory's responsibility when set.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

func (t *SSHTransport) Execute(ctx context.Context, command string, timeout time.Duration) models.CommandResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return models.CommandResult{ExitCode: -1, Err: "ssh transport not connected"}
	}

	session, err := client.NewSession()
	if err != nil {
		return models.CommandResult{ExitCode: -1, Err: "ssh session: " + err.Error()}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var runErr error
	timedOut := false
	select {
	case runErr = <-done:
	case <-timer.C:
		timedOut = true
		session.Close() // tears down the channel, unblocks Run
		<-done
	case <-ctx.Done():
		session.Close()
		<-done
		runErr = ctx.Err()
	}

	result := models.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if timedOut {
		return timedOutResult(command, timeout, result)
	}
	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result
		}
		result.ExitCode = -1
		result.Err = runErr.Error()
	}
	return result
}

func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
