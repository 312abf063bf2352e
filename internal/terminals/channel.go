package terminals

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/ssh"

	"opsdeck/internal/sshpool"
)

// Channel is one dedicated interactive shell. It is owned exclusively by
// its session and never shared with the pooled command connections.
// Read blocks until output arrives or the channel ends with an error.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(cols, rows int) error
	Close() error
}

// DialFunc opens a new interactive channel; tests inject fakes here.
type DialFunc func(ctx context.Context, endpoint sshpool.Endpoint) (Channel, error)

// shellChannel is the production channel: a pty-backed shell on its own
// SSH client, separate from the command pool.
type shellChannel struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

const (
	defaultTermCols = 120
	defaultTermRows = 40
)

func openShellChannel(ctx context.Context, endpoint sshpool.Endpoint, connectTimeout time.Duration) (Channel, error) {
	client, err := sshpool.Dial(ctx, endpoint, connectTimeout)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrShellUnavailable, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := session.RequestPty("xterm-256color", defaultTermRows, defaultTermCols, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: request pty: %v", ErrShellUnavailable, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrShellUnavailable, err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrShellUnavailable, err)
	}

	// With a pty the remote merges stderr into the stdout stream.
	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrShellUnavailable, err)
	}

	return &shellChannel{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

func (c *shellChannel) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *shellChannel) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

func (c *shellChannel) Resize(cols, rows int) error {
	return c.session.WindowChange(rows, cols)
}

func (c *shellChannel) Close() error {
	_ = c.stdin.Close()
	_ = c.session.Close()
	return c.client.Close()
}
