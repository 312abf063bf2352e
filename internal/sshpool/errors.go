package sshpool

import "errors"

var (
	ErrNoAuthMethodProvided = errors.New("no valid authentication method provided")
	ErrNotConnected         = errors.New("ssh connection not established")
	ErrFailedToCreateAuth   = errors.New("failed to create auth")
	ErrConnectFailed        = errors.New("failed to create SSH client")
	ErrLivenessProbeFailed  = errors.New("failed to test SSH connection")
)
