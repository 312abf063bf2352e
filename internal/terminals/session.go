package terminals

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"opsdeck/internal/encoding"
	"opsdeck/internal/sshpool"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// localeMarker prefixes locale status lines echoed back by the shell
// fragments the engine sends. The reader recognizes them inline with
// ordinary output, records the locale, and strips them.
const localeMarker = "__OPSDECK_LOCALE__"

// sessionEndMarker is appended to the buffer when the channel ends.
const sessionEndMarker = "\n[session ended]\n"

// HistoryEntry is one command sent through SendCommand.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

// Info is a point-in-time snapshot of one session, safe to hand out.
type Info struct {
	TerminalID   string         `json:"terminalId"`
	SessionID    string         `json:"sessionId"`
	Host         string         `json:"host"`
	Port         uint           `json:"port"`
	Username     string         `json:"username"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	CommandCount int            `json:"commandCount"`
	Locale       string         `json:"locale,omitempty"`
	Encoding     string         `json:"encoding"`
	History      []HistoryEntry `json:"history,omitempty"`
}

// CloseSummary describes a finished session; close listeners receive it.
type CloseSummary struct {
	TerminalID       string        `json:"terminalId"`
	ClosedAt         time.Time     `json:"closedAt"`
	Duration         time.Duration `json:"duration"`
	CommandsExecuted int           `json:"commandsExecuted"`
}

// Session owns one interactive channel, one reader goroutine and one
// output buffer. All mutable state lives behind mu; the reader and the
// engine's operations never touch it unlocked.
type Session struct {
	ID        string
	SessionID string
	Endpoint  sshpool.Endpoint
	CreatedAt time.Time

	channel  Channel
	detector *encoding.Detector

	mu           sync.Mutex
	status       Status
	lastActivity time.Time
	commandCount int
	history      []HistoryEntry
	historyBound int

	// forced, when set, overrides detection for both reads and writes.
	forced      string
	encName     string
	localeValue string
	decoder     *encoding.StreamDecoder

	buffer strings.Builder
	// markerPending holds a trailing partial line that may still turn
	// out to be a locale marker once the rest of it arrives.
	markerPending string

	closeOnce sync.Once
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]HistoryEntry, len(s.history))
	copy(history, s.history)

	return Info{
		TerminalID:   s.ID,
		SessionID:    s.SessionID,
		Host:         s.Endpoint.Host,
		Port:         s.Endpoint.Port,
		Username:     s.Endpoint.Username,
		Status:       s.status,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		CommandCount: s.commandCount,
		Locale:       s.localeValue,
		Encoding:     s.encName,
		History:      history,
	}
}

// recordCommand appends a bounded history entry and bumps the counter.
func (s *Session) recordCommand(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commandCount++
	s.lastActivity = time.Now()
	s.history = append(s.history, HistoryEntry{Timestamp: s.lastActivity, Command: command})
	if s.historyBound > 0 && len(s.history) > s.historyBound {
		s.history = s.history[len(s.history)-s.historyBound:]
	}
}

func (s *Session) commandsExecuted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandCount
}

// encodeInput converts outgoing text using the session's effective
// encoding so input and output agree on the wire.
func (s *Session) encodeInput(text string) []byte {
	s.mu.Lock()
	name := s.encName
	if s.forced != "" {
		name = s.forced
	}
	s.mu.Unlock()
	return encoding.Encode(name, text)
}

// ingest decodes one raw chunk, strips locale markers, and appends the
// remainder to the output buffer.
func (s *Session) ingest(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.decoder.Write(data)

	// Heuristic re-detection only when nothing is forced and the current
	// decoder produced visible damage on this chunk.
	if s.forced == "" && replacementRatio(text) > 0.10 {
		redecoded, used := s.detector.DecodeStream(s.ID, data, s.encName)
		if used != s.encName {
			s.encName = used
			s.decoder = encoding.NewStreamDecoder(used)
			text = redecoded
		}
	}

	s.lastActivity = time.Now()
	s.buffer.WriteString(s.filterMarkersLocked(text))
}

// finish flushes the decoder tail and marks the session disconnected.
// An error status set by a failed send stays sticky.
func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tail := s.decoder.Flush(); tail != "" {
		s.buffer.WriteString(s.filterMarkersLocked(tail))
	}
	if s.markerPending != "" {
		s.buffer.WriteString(s.markerPending)
		s.markerPending = ""
	}
	s.buffer.WriteString(sessionEndMarker)

	if s.status != StatusError {
		s.status = StatusDisconnected
	}
}

// drain atomically takes and clears the buffered output.
func (s *Session) drain() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.buffer.String()
	s.buffer.Reset()
	return out
}

// filterMarkersLocked scans decoded text line by line for locale markers.
// A trailing partial line is held back only while it could still be one.
func (s *Session) filterMarkersLocked(text string) string {
	text = s.markerPending + text
	s.markerPending = ""

	var out strings.Builder
	for {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			break
		}
		line := text[:idx+1]
		if !s.consumeMarkerLocked(line) {
			out.WriteString(line)
		}
		text = text[idx+1:]
	}

	if mayBeMarker(text) {
		s.markerPending = text
	} else {
		out.WriteString(text)
	}
	return out.String()
}

func (s *Session) consumeMarkerLocked(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, localeMarker) {
		return false
	}

	loc := strings.TrimSpace(strings.TrimPrefix(trimmed, localeMarker))
	if loc == "" {
		return true
	}

	s.localeValue = loc
	if s.forced == "" {
		if name := encoding.BaseEncodingFromLocale(loc); name != s.encName {
			s.encName = name
			s.decoder = encoding.NewStreamDecoder(name)
		}
	}
	return true
}

func mayBeMarker(partial string) bool {
	trimmed := strings.TrimLeft(partial, "\r ")
	if trimmed == "" {
		return partial != ""
	}
	if len(trimmed) < len(localeMarker) {
		return strings.HasPrefix(localeMarker, trimmed)
	}
	return strings.HasPrefix(trimmed, localeMarker)
}

func replacementRatio(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	bad := 0
	for _, r := range text {
		if r == utf8.RuneError {
			bad++
		}
	}
	return float64(bad) / float64(total)
}
