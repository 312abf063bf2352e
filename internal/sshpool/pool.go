// Package sshpool owns keyed, reusable SSH command sessions. Connections
// are created lazily on first use, lent by reference, and evicted when a
// liveness probe fails or they sit idle past the staleness window.
package sshpool

import (
	"context"
	"sync"
	"time"

	"opsdeck/internal/encoding"
	"opsdeck/internal/faults"
	"opsdeck/internal/logger"

	"github.com/robfig/cron/v3"
)

const (
	DefaultMaxConnections = 20
	DefaultStaleAfter     = 5 * time.Minute
	DefaultConnectTimeout = 10 * time.Second
	DefaultSweepEvery     = time.Minute
)

type Options struct {
	MaxConnections int
	StaleAfter     time.Duration
	ConnectTimeout time.Duration
	SweepEvery     time.Duration
	// Dial overrides the SSH dialer; tests inject fakes here.
	Dial DialFunc
}

type Pool struct {
	mu    sync.Mutex
	conns map[string]*Conn

	maxConnections int
	staleAfter     time.Duration
	connectTimeout time.Duration
	sweepEvery     time.Duration

	dial        DialFunc
	detector    *encoding.Detector
	localeCache *encoding.LocaleCache

	sweeper *cron.Cron
}

func New(opts Options) *Pool {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = DefaultSweepEvery
	}

	p := &Pool{
		conns:          map[string]*Conn{},
		maxConnections: opts.MaxConnections,
		staleAfter:     opts.StaleAfter,
		connectTimeout: opts.ConnectTimeout,
		sweepEvery:     opts.SweepEvery,
		dial:           opts.Dial,
		detector:       encoding.NewDetector(),
		localeCache:    encoding.NewLocaleCache(),
	}

	if p.dial == nil {
		p.dial = func(ctx context.Context, endpoint Endpoint) (RemoteClient, error) {
			return dialSSH(ctx, endpoint, p.connectTimeout)
		}
	}

	return p
}

// Acquire returns the pooled connection for the endpoint key, replacing
// it if the liveness probe fails, or authenticating a new one. A failed
// acquire leaves no pool entry behind.
func (p *Pool) Acquire(ctx context.Context, endpoint Endpoint) (*Conn, error) {
	key := endpoint.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.conns[key]; ok {
		if existing.alive() {
			return existing, nil
		}
		existing.close()
		delete(p.conns, key)
		logger.Debug("replacing dead connection %s", key)
	}

	if len(p.conns) >= p.maxConnections {
		evicted := p.evictStaleLocked()
		logger.Debug("pool at capacity, evicted %d stale connections", evicted)
	}

	client, err := p.dial(ctx, endpoint)
	if err != nil {
		return nil, faults.Wrap(faults.Connection, err, key)
	}

	conn := &Conn{
		endpoint:  endpoint,
		client:    client,
		detector:  p.detector,
		connected: true,
		lastUsed:  time.Now(),
	}
	conn.remoteEncoding = p.detectRemoteEncoding(ctx, conn)

	p.conns[key] = conn
	logger.Info("ssh connection established: %s", key)
	return conn, nil
}

// Run is the acquire-then-execute convenience used by the orchestrator.
func (p *Pool) Run(ctx context.Context, endpoint Endpoint, command string, timeout time.Duration) (*ExecResult, error) {
	conn, err := p.Acquire(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return conn.Execute(ctx, command, timeout)
}

// detectRemoteEncoding probes the remote locale once per endpoint key;
// the result never changes for a live connection, so it is cached.
func (p *Pool) detectRemoteEncoding(ctx context.Context, conn *Conn) string {
	key := conn.endpoint.Key()

	if cached, ok := p.localeCache.Get(key); ok {
		return cached
	}

	enc := "utf-8"
	stdout, _, exitCode, err := conn.client.Exec(ctx, "locale 2>/dev/null | grep LC_CTYPE")
	if err == nil && exitCode == 0 {
		enc = encoding.BaseEncodingFromLocale(string(stdout))
	} else {
		logger.Debug("locale probe failed for %s, assuming utf-8", key)
	}

	p.localeCache.Put(key, enc)
	return enc
}

// EvictStale removes connections idle past the staleness window and
// returns how many were closed. The periodic sweep and the capacity
// check both go through here.
func (p *Pool) EvictStale() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evictStaleLocked()
}

func (p *Pool) evictStaleLocked() int {
	cutoff := time.Now().Add(-p.staleAfter)
	evicted := 0

	for key, conn := range p.conns {
		if conn.idleSince().Before(cutoff) {
			conn.close()
			delete(p.conns, key)
			evicted++
			logger.Info("evicted stale connection: %s", key)
		}
	}

	return evicted
}

// StartSweeper schedules the periodic staleness sweep. Stop releases it.
func (p *Pool) StartSweeper() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sweeper != nil {
		return
	}

	p.sweeper = cron.New()
	_, _ = p.sweeper.AddFunc("@every "+p.sweepEvery.String(), func() {
		p.EvictStale()
	})
	p.sweeper.Start()
}

func (p *Pool) Stop() {
	p.mu.Lock()
	sweeper := p.sweeper
	p.sweeper = nil
	p.mu.Unlock()

	if sweeper != nil {
		sweeper.Stop()
	}

	p.CloseAll()
}

func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, conn := range p.conns {
		conn.close()
		delete(p.conns, key)
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, conn := range p.conns {
		if conn.alive() {
			active++
		}
	}

	return Stats{
		Total:          len(p.conns),
		Active:         active,
		MaxConnections: p.maxConnections,
	}
}
