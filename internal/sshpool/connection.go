package sshpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"opsdeck/internal/encoding"
	"opsdeck/internal/faults"

	"github.com/melbahja/goph"
	"golang.org/x/crypto/ssh"
)

// Conn is one pooled, authenticated session. It is owned exclusively by
// the pool; callers borrow it for the duration of a single call. All
// executions on one Conn are serialized through its private lock.
type Conn struct {
	endpoint Endpoint
	client   RemoteClient
	detector *encoding.Detector

	// execMu serializes remote executions on this physical connection.
	execMu sync.Mutex

	// stateMu guards the fields below against the sweeper.
	stateMu   sync.Mutex
	connected bool
	lastUsed  time.Time

	// remoteEncoding is detected once at connect time and never changes
	// for a live connection.
	remoteEncoding string
}

func (c *Conn) Endpoint() Endpoint {
	return c.endpoint
}

// RemoteEncoding is the base encoding detected from the remote locale.
func (c *Conn) RemoteEncoding() string {
	return c.remoteEncoding
}

func (c *Conn) touch() {
	c.stateMu.Lock()
	c.lastUsed = time.Now()
	c.stateMu.Unlock()
}

func (c *Conn) idleSince() time.Time {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastUsed
}

func (c *Conn) alive() bool {
	c.stateMu.Lock()
	connected := c.connected
	c.stateMu.Unlock()
	return connected && c.client.Alive()
}

func (c *Conn) close() {
	c.stateMu.Lock()
	c.connected = false
	c.stateMu.Unlock()
	_ = c.client.Close()
}

// Execute runs command with a deadline. Concurrent callers sharing this
// connection queue on the lock rather than interleave. A timeout surfaces
// a deadline fault without invalidating the connection.
func (c *Conn) Execute(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	if !c.alive() {
		return nil, faults.Wrap(faults.Connection, ErrNotConnected, c.endpoint.Key())
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stdout, stderr, exitCode, err := c.client.Exec(ctx, command)

	c.touch()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, faults.Wrap(faults.Deadline, err, fmt.Sprintf("command on %s", c.endpoint.Host))
		}
		return nil, faults.Wrap(faults.Internal, err, fmt.Sprintf("command on %s", c.endpoint.Host))
	}

	outText, used := c.detector.Decode(stdout, c.remoteEncoding)
	errText, _ := c.detector.Decode(stderr, c.remoteEncoding)

	return &ExecResult{
		Stdout:    outText,
		Stderr:    errText,
		RawStdout: stdout,
		ExitCode:  exitCode,
		Encoding:  used,
	}, nil
}

// Run satisfies the resolver's Runner interface: stdout on success, a
// typed error when the command itself fails.
func (c *Conn) Run(ctx context.Context, command string) (string, error) {
	res, err := c.Execute(ctx, command, 10*time.Second)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", faults.Errorf(faults.Internal, "command exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// gophClient is the production RemoteClient on top of goph / x-crypto.
type gophClient struct {
	client *goph.Client
}

// Dial authenticates a raw SSH client to the endpoint and verifies the
// transport with an echo probe. The terminal engine dials its dedicated
// interactive channels through here as well.
func Dial(ctx context.Context, endpoint Endpoint, connectTimeout time.Duration) (*ssh.Client, error) {
	var authMethods []ssh.AuthMethod

	if endpoint.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(endpoint.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToCreateAuth, err)
		}

		var signer ssh.Signer
		if endpoint.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(endpoint.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToCreateAuth, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	} else if endpoint.Password != "" {
		authMethods = append(authMethods, ssh.Password(endpoint.Password))
	} else {
		return nil, ErrNoAuthMethodProvided
	}

	sshConfig := &ssh.ClientConfig{
		User:            endpoint.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < sshConfig.Timeout {
			sshConfig.Timeout = remaining
		}
	}

	conn, err := net.DialTimeout("tcp", endpoint.Addr(), sshConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, endpoint.Addr(), sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrLivenessProbeFailed, err)
	}
	err = session.Run("echo 'connection test'")
	session.Close()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrLivenessProbeFailed, err)
	}

	return client, nil
}

// dialSSH wraps a freshly dialed client in a goph client for pooled
// command execution.
func dialSSH(ctx context.Context, endpoint Endpoint, connectTimeout time.Duration) (RemoteClient, error) {
	client, err := Dial(ctx, endpoint, connectTimeout)
	if err != nil {
		return nil, err
	}
	return &gophClient{client: &goph.Client{Client: client}}, nil
}

func (g *gophClient) Exec(ctx context.Context, command string) ([]byte, []byte, int, error) {
	cmd, err := g.client.CommandContext(ctx, command)
	if err != nil {
		return nil, nil, -1, fmt.Errorf("failed to create command: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	exitCode := 0
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitStatus()
			err = nil
		} else {
			exitCode = -1
		}
	}

	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

func (g *gophClient) Alive() bool {
	_, _, err := g.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

func (g *gophClient) Close() error {
	return g.client.Close()
}
