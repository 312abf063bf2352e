package sshpool

import (
	"context"
	"fmt"
	"net"
)

// Endpoint identifies one remote target plus the credentials to reach it.
// Pool identity is host+port+username; credentials are not part of the key.
type Endpoint struct {
	Host     string
	Port     uint
	Username string
	// Password authentication
	Password string
	// Key-based authentication
	PrivateKeyPath string
	// Passphrase for the private key (if encrypted)
	Passphrase string
}

func (e Endpoint) Key() string {
	return fmt.Sprintf("%s:%d:%s", e.Host, e.Port, e.Username)
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, fmt.Sprintf("%d", e.Port))
}

// ExecResult is the outcome of one remote command.
type ExecResult struct {
	Stdout    string
	Stderr    string
	RawStdout []byte
	ExitCode  int
	// Encoding actually used to decode stdout.
	Encoding string
}

// RemoteClient is the authenticated transport a pooled connection wraps.
// The production implementation sits on goph/x-crypto; tests substitute
// an in-memory fake.
type RemoteClient interface {
	Exec(ctx context.Context, command string) (stdout, stderr []byte, exitCode int, err error)
	Alive() bool
	Close() error
}

// DialFunc authenticates a new transport to an endpoint.
type DialFunc func(ctx context.Context, endpoint Endpoint) (RemoteClient, error)

// Stats is a point-in-time view of the pool.
type Stats struct {
	Total          int
	Active         int
	MaxConnections int
}
