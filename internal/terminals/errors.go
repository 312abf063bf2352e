package terminals

import "errors"

var (
	ErrSessionNotFound   = errors.New("terminal session not found")
	ErrShellUnavailable  = errors.New("failed to open interactive shell")
	ErrUnknownLocaleMode = errors.New("locale must be a concrete value or \"auto\"")
)
