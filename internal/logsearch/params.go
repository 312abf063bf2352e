package logsearch

import (
	"opsdeck/internal/faults"
	"opsdeck/internal/sshpool"
)

type Mode string

const (
	// ModeKeyword returns matching lines only.
	ModeKeyword Mode = "keyword"
	// ModeContext returns matching lines with surrounding context.
	ModeContext Mode = "context"
	// ModeTail returns the most recent lines without matching.
	ModeTail Mode = "tail"
)

const (
	minContextSpan = 0
	maxContextSpan = 50
)

// SearchParams describes one search request across a log entry's hosts.
type SearchParams struct {
	Keyword      string
	Mode         Mode
	ContextSpan  int
	UseRegex     bool
	ReverseOrder bool

	// Per-host file selection. Keys are "host" or "host|index" so two
	// configs on the same address stay distinguishable; SelectedFile is
	// the single-file fallback.
	UseFileFilter bool
	SelectedFile  string
	SelectedFiles map[string]string

	// MaxLines caps the per-host result set, keeping the most recent
	// entries. Zero means uncapped (up to the pipeline ceiling).
	MaxLines int
}

// Validate runs before any command is built or any network touched.
func (p *SearchParams) Validate() error {
	if p.ContextSpan < minContextSpan || p.ContextSpan > maxContextSpan {
		return faults.Errorf(faults.Validation, "context span must be within [%d,%d], got %d",
			minContextSpan, maxContextSpan, p.ContextSpan)
	}

	switch p.Mode {
	case ModeKeyword, ModeContext, ModeTail:
	default:
		return faults.Errorf(faults.Validation, "search mode must be one of keyword/context/tail, got %q", p.Mode)
	}

	if p.MaxLines < 0 {
		return faults.Errorf(faults.Validation, "max lines must not be negative, got %d", p.MaxLines)
	}

	return nil
}

// HostTarget is one host of a log entry with its default log path.
type HostTarget struct {
	Endpoint sshpool.Endpoint
	Path     string
}

// LogEntry is the resolved configuration of one named log.
type LogEntry struct {
	Name string
	// Path is the legacy entry-wide default, overridden per host.
	Path  string
	Hosts []HostTarget
}
