// Package terminals creates and owns interactive shell sessions: one
// dedicated channel and one background reader per session, drain-style
// output polling, and an idle reaper. The registry is process-wide state
// with no persistence; a restart drops all sessions.
package terminals

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"opsdeck/internal/encoding"
	"opsdeck/internal/faults"
	"opsdeck/internal/logger"
	"opsdeck/internal/sshpool"
	"opsdeck/internal/templates"
)

const (
	DefaultIdleAfter      = 30 * time.Minute
	DefaultReapEvery      = 30 * time.Second
	DefaultHistoryBound   = 200
	DefaultConnectTimeout = 10 * time.Second
)

// CloseListener is invoked exactly once per session when it is closed,
// explicitly or by the reaper.
type CloseListener func(summary CloseSummary)

type Options struct {
	IdleAfter      time.Duration
	ReapEvery      time.Duration
	HistoryBound   int
	ConnectTimeout time.Duration
	// Dial overrides the channel dialer; tests inject fakes here.
	Dial DialFunc
}

// Engine is the session registry plus the operations on live sessions.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session

	dial     DialFunc
	detector *encoding.Detector

	idleAfter      time.Duration
	reapEvery      time.Duration
	historyBound   int
	connectTimeout time.Duration

	listenerMu sync.Mutex
	listeners  []CloseListener

	reaper *cron.Cron
}

func New(opts Options) *Engine {
	if opts.IdleAfter <= 0 {
		opts.IdleAfter = DefaultIdleAfter
	}
	if opts.ReapEvery <= 0 {
		opts.ReapEvery = DefaultReapEvery
	}
	if opts.HistoryBound <= 0 {
		opts.HistoryBound = DefaultHistoryBound
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	e := &Engine{
		sessions:       map[string]*Session{},
		dial:           opts.Dial,
		detector:       encoding.NewDetector(),
		idleAfter:      opts.IdleAfter,
		reapEvery:      opts.ReapEvery,
		historyBound:   opts.HistoryBound,
		connectTimeout: opts.ConnectTimeout,
	}

	if e.dial == nil {
		e.dial = func(ctx context.Context, endpoint sshpool.Endpoint) (Channel, error) {
			return openShellChannel(ctx, endpoint, e.connectTimeout)
		}
	}

	return e
}

// Open authenticates a dedicated interactive channel, registers the
// session and starts its reader. The remote is nudged toward a UTF-8
// locale right away; failures there are ignored, decoding copes.
func (e *Engine) Open(ctx context.Context, endpoint sshpool.Endpoint, initialCommand string) (*Session, error) {
	id := uuid.New()
	hexID := strings.ReplaceAll(id.String(), "-", "")

	s := &Session{
		ID:           "term_" + hexID[:8],
		SessionID:    "session_" + hexID[8:14],
		Endpoint:     endpoint,
		CreatedAt:    time.Now(),
		detector:     e.detector,
		status:       StatusConnecting,
		historyBound: e.historyBound,
		encName:      "utf-8",
		decoder:      encoding.NewStreamDecoder("utf-8"),
	}

	channel, err := e.dial(ctx, endpoint)
	if err != nil {
		return nil, faults.Wrap(faults.Connection, err, endpoint.Key())
	}
	s.channel = channel
	s.status = StatusConnected
	s.lastActivity = time.Now()

	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()

	go e.readLoop(s)

	if _, err := channel.Write([]byte("export LANG=C.UTF-8 LC_ALL=C.UTF-8\n")); err != nil {
		logger.Debug("locale bootstrap failed on %s: %v", s.ID, err)
	}

	if initialCommand != "" {
		if err := e.SendCommand(s.ID, initialCommand); err != nil {
			logger.Warn("initial command failed on %s: %v", s.ID, err)
		}
	}

	logger.Info("terminal opened: %s -> %s", s.ID, endpoint.Key())
	return s, nil
}

func (e *Engine) get(terminalID string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[terminalID]
	if !ok {
		return nil, faults.Wrap(faults.NotFound, ErrSessionNotFound, terminalID)
	}
	return s, nil
}

// Get returns a snapshot of one session.
func (e *Engine) Get(terminalID string) (Info, error) {
	s, err := e.get(terminalID)
	if err != nil {
		return Info{}, err
	}
	return s.snapshot(), nil
}

// List snapshots every registered session.
func (e *Engine) List() []Info {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.snapshot())
	}
	return infos
}

// Stats counts registered and connected sessions.
func (e *Engine) Stats() (total, active int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total = len(e.sessions)
	for _, s := range e.sessions {
		if s.Status() == StatusConnected {
			active++
		}
	}
	return total, active
}

// Send writes raw input without touching history or the command count.
func (e *Engine) Send(terminalID string, data string) error {
	s, err := e.get(terminalID)
	if err != nil {
		return err
	}

	if _, err := s.channel.Write(s.encodeInput(data)); err != nil {
		s.setStatus(StatusError)
		return faults.Wrap(faults.Internal, err, "send to "+terminalID)
	}
	s.touch()
	return nil
}

// SendCommand writes one command line and records it in the bounded
// history; only this path increments the command counter.
func (e *Engine) SendCommand(terminalID string, command string) error {
	s, err := e.get(terminalID)
	if err != nil {
		return err
	}

	line := command
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	if _, err := s.channel.Write(s.encodeInput(line)); err != nil {
		s.setStatus(StatusError)
		return faults.Wrap(faults.Internal, err, "command to "+terminalID)
	}
	s.recordCommand(command)
	return nil
}

// Resize adjusts the remote pseudo-terminal geometry. Best-effort: a
// failure is surfaced and marks the session, the channel stays open.
func (e *Engine) Resize(terminalID string, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return faults.Errorf(faults.Validation, "terminal size must be positive, got %dx%d", cols, rows)
	}

	s, err := e.get(terminalID)
	if err != nil {
		return err
	}

	if err := s.channel.Resize(cols, rows); err != nil {
		s.setStatus(StatusError)
		return faults.Wrap(faults.Internal, err, "resize "+terminalID)
	}
	s.touch()
	return nil
}

// SetLocale sends a shell fragment exporting locale variables, or in
// "auto" mode one that greps the remote's available locales for a UTF-8
// entry. The echoed marker line is recognized by the reader and recorded
// on the session.
func (e *Engine) SetLocale(terminalID string, locale string) error {
	s, err := e.get(terminalID)
	if err != nil {
		return err
	}

	locale = strings.TrimSpace(locale)
	if locale == "" {
		return faults.Wrap(faults.Validation, ErrUnknownLocaleMode, terminalID)
	}

	script, err := renderLocaleScript(locale)
	if err != nil {
		return faults.Wrap(faults.Internal, err, "locale script")
	}

	s.mu.Lock()
	if locale == "auto" {
		s.forced = ""
	} else {
		// An explicit locale forces the session encoding immediately;
		// the marker only confirms what the remote accepted.
		name := encoding.BaseEncodingFromLocale(locale)
		s.forced = name
		s.encName = name
		s.decoder = encoding.NewStreamDecoder(name)
	}
	s.mu.Unlock()

	if _, err := s.channel.Write([]byte(script + "\n")); err != nil {
		s.setStatus(StatusError)
		return faults.Wrap(faults.Internal, err, "locale to "+terminalID)
	}
	s.touch()
	return nil
}

func renderLocaleScript(locale string) (string, error) {
	name := "scripts/locale-set.sh.hbs"
	if locale == "auto" {
		name = "scripts/locale-auto.sh.hbs"
	}

	raw, err := templates.Scripts.ReadFile(name)
	if err != nil {
		return "", err
	}

	tpl, err := raymond.Parse(string(raw))
	if err != nil {
		return "", err
	}

	out, err := tpl.Exec(map[string]string{
		"locale": locale,
		"marker": localeMarker,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GetOutput atomically drains and clears the session's output buffer.
// Consumers poll; this layer never pushes.
func (e *Engine) GetOutput(terminalID string) (string, error) {
	s, err := e.get(terminalID)
	if err != nil {
		return "", err
	}
	return s.drain(), nil
}

// Close removes the session, closes its channel, and fires the close
// listeners exactly once.
func (e *Engine) Close(terminalID string) (CloseSummary, error) {
	e.mu.Lock()
	s, ok := e.sessions[terminalID]
	if ok {
		delete(e.sessions, terminalID)
	}
	e.mu.Unlock()

	if !ok {
		return CloseSummary{}, faults.Wrap(faults.NotFound, ErrSessionNotFound, terminalID)
	}

	_ = s.channel.Close()
	if s.Status() != StatusError {
		s.setStatus(StatusDisconnected)
	}
	e.detector.ForgetStream(s.ID)

	summary := CloseSummary{
		TerminalID:       s.ID,
		ClosedAt:         time.Now(),
		CommandsExecuted: s.commandsExecuted(),
	}
	summary.Duration = summary.ClosedAt.Sub(s.CreatedAt)

	s.closeOnce.Do(func() {
		e.fireClose(summary)
	})

	logger.Info("terminal closed: %s after %s, %d commands",
		s.ID, summary.Duration.Round(time.Second), summary.CommandsExecuted)
	return summary, nil
}

// RegisterCloseListener subscribes to session-closed events so an
// external notifier can inform clients.
func (e *Engine) RegisterCloseListener(listener CloseListener) {
	if listener == nil {
		return
	}
	e.listenerMu.Lock()
	e.listeners = append(e.listeners, listener)
	e.listenerMu.Unlock()
}

func (e *Engine) fireClose(summary CloseSummary) {
	e.listenerMu.Lock()
	listeners := append([]CloseListener(nil), e.listeners...)
	e.listenerMu.Unlock()

	for _, listener := range listeners {
		listener(summary)
	}
}

// ReapIdle force-closes sessions idle past the threshold and returns
// how many were closed.
func (e *Engine) ReapIdle() int {
	cutoff := time.Now().Add(-e.idleAfter)

	e.mu.Lock()
	var victims []string
	for id, s := range e.sessions {
		if s.lastActive().Before(cutoff) {
			victims = append(victims, id)
		}
	}
	e.mu.Unlock()

	for _, id := range victims {
		if _, err := e.Close(id); err == nil {
			logger.Info("reaped idle terminal: %s", id)
		}
	}
	return len(victims)
}

// StartReaper schedules the periodic idle sweep. Stop releases it and
// closes every remaining session.
func (e *Engine) StartReaper() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reaper != nil {
		return
	}

	e.reaper = cron.New()
	_, _ = e.reaper.AddFunc("@every "+e.reapEvery.String(), func() {
		e.ReapIdle()
	})
	e.reaper.Start()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	reaper := e.reaper
	e.reaper = nil
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	if reaper != nil {
		reaper.Stop()
	}
	for _, id := range ids {
		_, _ = e.Close(id)
	}
}

// readLoop is the single background reader bound to one channel's
// lifetime. Channel end is the only automatic exit from connected.
func (e *Engine) readLoop(s *Session) {
	buf := make([]byte, 8192)
	for {
		n, err := s.channel.Read(buf)
		if n > 0 {
			s.ingest(buf[:n])
		}
		if err != nil {
			break
		}
	}
	s.finish()
	logger.Debug("terminal reader ended: %s", s.ID)
}
