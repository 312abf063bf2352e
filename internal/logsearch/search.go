// Package logsearch fans one search request out across a log entry's
// hosts, building a bounded remote shell pipeline per host and merging
// the per-host outcomes into a single ordered result.
package logsearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"opsdeck/internal/faults"
	"opsdeck/internal/filenames"
	"opsdeck/internal/logger"
	"opsdeck/internal/sshpool"
)

const (
	DefaultWorkers     = 10
	DefaultHostTimeout = 30 * time.Second
)

// Runner executes one command on one endpoint. *sshpool.Pool satisfies
// it; tests inject fakes.
type Runner interface {
	Run(ctx context.Context, endpoint sshpool.Endpoint, command string, timeout time.Duration) (*sshpool.ExecResult, error)
}

// Orchestrator runs searches across the hosts of a log entry.
type Orchestrator struct {
	runner  Runner
	probe   *reverseProbe
	workers int
	timeout time.Duration

	// now feeds placeholder resolution; tests pin it.
	now func() time.Time
}

type OrchestratorOptions struct {
	Workers     int
	HostTimeout time.Duration
	Now         func() time.Time
}

func NewOrchestrator(runner Runner, opts OrchestratorOptions) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.HostTimeout <= 0 {
		opts.HostTimeout = DefaultHostTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		runner:  runner,
		probe:   newReverseProbe(),
		workers: opts.Workers,
		timeout: opts.HostTimeout,
		now:     opts.Now,
	}
}

// Search validates params, then runs the per-host pipeline concurrently
// across the entry's hosts. A host failure never aborts the others; it
// surfaces as a failed HostResult in index order.
func (o *Orchestrator) Search(ctx context.Context, entry LogEntry, params SearchParams) (*SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(entry.Hosts) == 0 {
		return nil, faults.Errorf(faults.Validation, "log entry %q has no hosts", entry.Name)
	}

	started := time.Now()
	results := make([]HostResult, len(entry.Hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i := range entry.Hosts {
		i := i
		g.Go(func() error {
			results[i] = o.searchHost(gctx, entry, i, params)
			return nil
		})
	}
	_ = g.Wait()

	res := &SearchResult{
		Entry:    entry.Name,
		Hosts:    results,
		Duration: time.Since(started),
	}

	logger.Info("search %q finished: %d hosts, %d lines, %d failed",
		entry.Name, len(res.Hosts), res.TotalResults(), len(res.FailedHosts()))

	return res, nil
}

func (o *Orchestrator) searchHost(ctx context.Context, entry LogEntry, index int, params SearchParams) HostResult {
	host := entry.Hosts[index]
	started := time.Now()

	result := HostResult{
		Host:      host.Endpoint.Addr(),
		HostIndex: index,
	}

	fail := func(err error) HostResult {
		result.Error = err.Error()
		result.Duration = time.Since(started)
		logger.Warn("search on %s failed: %v", result.Host, err)
		return result
	}

	hctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	path, err := o.resolvePath(hctx, entry, index, params)
	if err != nil {
		return fail(err)
	}
	result.FilePath = path

	reverseTool := ""
	if params.ReverseOrder {
		reverseTool = o.probe.toolFor(hctx, o.runner, host.Endpoint)
	}

	pipe := buildPipeline(path, params, reverseTool)
	command := pipe.render()

	res, err := o.runner.Run(hctx, host.Endpoint, command, o.timeout)
	if err != nil {
		return fail(err)
	}

	// grep exits 1 on zero matches with nothing on stderr; only a
	// nonzero exit with diagnostics counts as a host failure.
	if res.ExitCode != 0 && strings.TrimSpace(res.Stderr) != "" {
		return fail(faults.Errorf(faults.Internal, "remote pipeline exited %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr)))
	}

	matches := parseOutput(res.Stdout, pipe.numbered)
	result.OriginalCount = len(matches)

	matches, truncated := clampLatest(matches, params.MaxLines, params.ReverseOrder)
	result.Matches = matches
	result.ResultCount = len(matches)
	result.Truncated = truncated

	result.RawOutput = res.Stdout
	result.DetectedEncoding = res.Encoding
	result.Success = true
	result.Duration = time.Since(started)
	return result
}

// resolvePath picks the file for one host and resolves any date or
// sequence placeholders against the remote.
func (o *Orchestrator) resolvePath(ctx context.Context, entry LogEntry, index int, params SearchParams) (string, error) {
	host := entry.Hosts[index]
	pattern := effectivePath(entry, index, params)
	if pattern == "" {
		return "", faults.Errorf(faults.Validation, "no log path configured for %s", host.Endpoint.Addr())
	}

	if !filenames.HasPlaceholders(pattern) {
		return pattern, nil
	}

	resolved, err := filenames.Resolve(ctx, pattern, o.now(), &endpointRunner{
		runner:   o.runner,
		endpoint: host.Endpoint,
		timeout:  o.timeout,
	})
	if err != nil {
		return "", err
	}
	if !resolved.Matched {
		logger.Debug("no numbered match for %q on %s, using base name", pattern, host.Endpoint.Addr())
	}
	return resolved.Path, nil
}

// effectivePath resolves the per-host file selection precedence:
// "host|index" key, then "host" key, then the single selected file,
// then the host default, then the entry default.
func effectivePath(entry LogEntry, index int, params SearchParams) string {
	host := entry.Hosts[index]
	addr := host.Endpoint.Addr()

	if params.UseFileFilter {
		if params.SelectedFiles != nil {
			if p, ok := params.SelectedFiles[fmt.Sprintf("%s|%d", addr, index)]; ok && p != "" {
				return p
			}
			if p, ok := params.SelectedFiles[addr]; ok && p != "" {
				return p
			}
		}
		if params.SelectedFile != "" {
			return params.SelectedFile
		}
	}

	if host.Path != "" {
		return host.Path
	}
	return entry.Path
}

// endpointRunner adapts the orchestrator's Runner to the single-endpoint
// interface placeholder resolution expects.
type endpointRunner struct {
	runner   Runner
	endpoint sshpool.Endpoint
	timeout  time.Duration
}

func (e *endpointRunner) Run(ctx context.Context, command string) (string, error) {
	res, err := e.runner.Run(ctx, e.endpoint, command, e.timeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", faults.Errorf(faults.Internal, "command exited %d: %s", res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}
