package logsearch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"opsdeck/internal/faults"
	"opsdeck/internal/sshpool"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	respond  func(endpoint sshpool.Endpoint, command string) (*sshpool.ExecResult, error)
}

func (f *fakeRunner) Run(_ context.Context, endpoint sshpool.Endpoint, command string, _ time.Duration) (*sshpool.ExecResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, endpoint.Host+" "+command)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(endpoint, command)
	}
	return okResult(""), nil
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func okResult(stdout string) *sshpool.ExecResult {
	return &sshpool.ExecResult{Stdout: stdout, Encoding: "utf-8"}
}

func keywordParams(keyword string) SearchParams {
	return SearchParams{Keyword: keyword, Mode: ModeKeyword}
}

func testEntry(hosts ...string) LogEntry {
	entry := LogEntry{Name: "app", Path: "/var/log/app.log"}
	for _, h := range hosts {
		entry.Hosts = append(entry.Hosts, HostTarget{
			Endpoint: sshpool.Endpoint{Host: h, Port: 22, Username: "ops", Password: "x"},
		})
	}
	return entry
}

func newTestOrchestrator(runner Runner) *Orchestrator {
	return NewOrchestrator(runner, OrchestratorOptions{
		Now: func() time.Time { return time.Date(2025, 9, 8, 12, 0, 0, 0, time.UTC) },
	})
}

func TestValidateRejectsBeforeAnyRemoteCall(t *testing.T) {
	runner := &fakeRunner{}
	o := newTestOrchestrator(runner)

	params := keywordParams("err")
	params.ContextSpan = 51

	_, err := o.Search(context.Background(), testEntry("10.0.0.1"), params)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if faults.KindOf(err) != faults.Validation {
		t.Errorf("expected validation fault, got %v", faults.KindOf(err))
	}
	if len(runner.calls()) != 0 {
		t.Errorf("invalid params must not reach the network, got %d calls", len(runner.calls()))
	}
}

func TestSearchKeywordModeCommand(t *testing.T) {
	runner := &fakeRunner{}
	o := newTestOrchestrator(runner)

	res, err := o.Search(context.Background(), testEntry("10.0.0.1"), keywordParams("timeout"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !res.Hosts[0].Success {
		t.Fatalf("expected success, got error %q", res.Hosts[0].Error)
	}

	calls := runner.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 command, got %d: %v", len(calls), calls)
	}
	want := "10.0.0.1 grep -nF 'timeout' '/var/log/app.log' | head -n 10000"
	if calls[0] != want {
		t.Errorf("command mismatch:\n got  %q\n want %q", calls[0], want)
	}
}

func TestSearchParsesNumberedOutput(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, _ string) (*sshpool.ExecResult, error) {
			return okResult("3:error one\n4-context after\n--\n9:error two\n"), nil
		},
	}
	o := newTestOrchestrator(runner)

	res, err := o.Search(context.Background(), testEntry("10.0.0.1"), keywordParams("error"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	matches := res.Hosts[0].Matches
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches with the group separator dropped, got %d", len(matches))
	}
	if matches[0].LineNumber != 3 || matches[0].Text != "error one" || matches[0].Context {
		t.Errorf("unexpected first match: %+v", matches[0])
	}
	if !matches[1].Context {
		t.Errorf("dash-separated line must be marked as context: %+v", matches[1])
	}
	if matches[2].LineNumber != 9 {
		t.Errorf("unexpected last match line number: %d", matches[2].LineNumber)
	}
}

func TestSearchContextModeAddsSpan(t *testing.T) {
	runner := &fakeRunner{}
	o := newTestOrchestrator(runner)

	params := SearchParams{Keyword: "panic", Mode: ModeContext, ContextSpan: 3, UseRegex: true}
	if _, err := o.Search(context.Background(), testEntry("10.0.0.1"), params); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	got := runner.calls()[0]
	if !strings.Contains(got, "grep -nE -C 3 'panic'") {
		t.Errorf("expected regex grep with context span, got %q", got)
	}
}

func TestSearchTailModeSkipsGrep(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, _ string) (*sshpool.ExecResult, error) {
			return okResult("line a\nline b\n"), nil
		},
	}
	o := newTestOrchestrator(runner)

	params := SearchParams{Mode: ModeTail, ContextSpan: 0}
	res, err := o.Search(context.Background(), testEntry("10.0.0.1"), params)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	got := runner.calls()[0]
	if got != "10.0.0.1 tail -n 100 '/var/log/app.log'" {
		t.Errorf("unexpected tail command: %q", got)
	}

	matches := res.Hosts[0].Matches
	if len(matches) != 2 || matches[0].LineNumber != 0 {
		t.Errorf("tail output must pass through unnumbered: %+v", matches)
	}
}

func TestSearchEmptyKeywordDegradesToTail(t *testing.T) {
	runner := &fakeRunner{}
	o := newTestOrchestrator(runner)

	if _, err := o.Search(context.Background(), testEntry("10.0.0.1"), keywordParams("")); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	got := runner.calls()[0]
	if !strings.Contains(got, "tail -n 100") || strings.Contains(got, "grep") {
		t.Errorf("empty keyword must degrade to a plain tail, got %q", got)
	}
}

func TestSearchCompressedFilePrependsDecompress(t *testing.T) {
	runner := &fakeRunner{}
	o := newTestOrchestrator(runner)

	entry := testEntry("10.0.0.1")
	entry.Hosts[0].Path = "/var/log/app.log.gz"

	if _, err := o.Search(context.Background(), entry, keywordParams("err")); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	got := runner.calls()[0]
	want := "10.0.0.1 gzip -dc '/var/log/app.log.gz' 2>/dev/null | grep -nF 'err' | head -n 10000"
	if got != want {
		t.Errorf("command mismatch:\n got  %q\n want %q", got, want)
	}
}

func TestSearchReverseProbesOncePerEndpoint(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, command string) (*sshpool.ExecResult, error) {
			if command == "which tac" {
				return okResult("/usr/bin/tac\n"), nil
			}
			return okResult(""), nil
		},
	}
	o := newTestOrchestrator(runner)

	params := keywordParams("err")
	params.ReverseOrder = true

	entry := testEntry("10.0.0.1")
	for i := 0; i < 2; i++ {
		if _, err := o.Search(context.Background(), entry, params); err != nil {
			t.Fatalf("search %d failed: %v", i, err)
		}
	}

	probes := 0
	var searchCmd string
	for _, call := range runner.calls() {
		if strings.HasSuffix(call, "which tac") {
			probes++
		} else {
			searchCmd = call
		}
	}
	if probes != 1 {
		t.Errorf("reverse tool must be probed once per endpoint, got %d probes", probes)
	}
	if !strings.Contains(searchCmd, "| tail -n 10000 | tac") {
		t.Errorf("expected bounded tac pipeline, got %q", searchCmd)
	}
}

func TestSearchReverseFallsBackToSed(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, command string) (*sshpool.ExecResult, error) {
			if command == "which tac" {
				return &sshpool.ExecResult{ExitCode: 1}, nil
			}
			return okResult(""), nil
		},
	}
	o := newTestOrchestrator(runner)

	params := keywordParams("err")
	params.ReverseOrder = true

	if _, err := o.Search(context.Background(), testEntry("10.0.0.1"), params); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	found := false
	for _, call := range runner.calls() {
		if strings.Contains(call, sedReverse) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected sed fallback in pipeline, calls: %v", runner.calls())
	}
}

func TestSearchReverseTruncationKeepsNewest(t *testing.T) {
	lines := []string{"9:newest", "7:mid", "5:older", "3:oldest"}
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, command string) (*sshpool.ExecResult, error) {
			if command == "which tac" {
				return okResult("/usr/bin/tac\n"), nil
			}
			return okResult(strings.Join(lines, "\n") + "\n"), nil
		},
	}
	o := newTestOrchestrator(runner)

	params := keywordParams("err")
	params.ReverseOrder = true
	params.MaxLines = 2

	res, err := o.Search(context.Background(), testEntry("10.0.0.1"), params)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	host := res.Hosts[0]
	if !host.Truncated {
		t.Errorf("cap below the match count must mark the result truncated")
	}
	if host.OriginalCount != 4 || host.ResultCount != 2 {
		t.Errorf("expected 4 original / 2 kept, got %d / %d", host.OriginalCount, host.ResultCount)
	}
	if host.OriginalCount < host.ResultCount {
		t.Errorf("original count must never undercut result count")
	}
	if host.Matches[0].Text != "newest" || host.Matches[1].Text != "mid" {
		t.Errorf("reversed truncation must keep the newest lines, got %+v", host.Matches)
	}
}

func TestSearchForwardTruncationKeepsTail(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, _ string) (*sshpool.ExecResult, error) {
			return okResult("1:a\n2:b\n3:c\n"), nil
		},
	}
	o := newTestOrchestrator(runner)

	params := keywordParams("x")
	params.MaxLines = 2

	res, err := o.Search(context.Background(), testEntry("10.0.0.1"), params)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	host := res.Hosts[0]
	if host.Matches[0].Text != "b" || host.Matches[1].Text != "c" {
		t.Errorf("forward truncation must keep the trailing lines, got %+v", host.Matches)
	}
}

func TestSearchHostFailureDoesNotAbortOthers(t *testing.T) {
	runner := &fakeRunner{
		respond: func(endpoint sshpool.Endpoint, _ string) (*sshpool.ExecResult, error) {
			if endpoint.Host == "10.0.0.2" {
				return nil, faults.New(faults.Connection, "ssh: unable to authenticate")
			}
			return okResult("1:a\n2:b\n3:c\n4:d\n5:e\n"), nil
		},
	}
	o := newTestOrchestrator(runner)

	res, err := o.Search(context.Background(), testEntry("10.0.0.1", "10.0.0.2"), keywordParams("err"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(res.Hosts) != 2 {
		t.Fatalf("expected both hosts in the result, got %d", len(res.Hosts))
	}
	for i, host := range res.Hosts {
		if host.HostIndex != i {
			t.Errorf("results must be ordered by host index, got %d at %d", host.HostIndex, i)
		}
	}
	if !res.Hosts[0].Success || res.Hosts[1].Success {
		t.Errorf("expected host 0 success and host 1 failure: %+v", res.Hosts)
	}
	if res.Hosts[1].Error == "" {
		t.Errorf("failed host must carry its error")
	}
	if got := res.TotalResults(); got != 5 {
		t.Errorf("expected 5 total results, got %d", got)
	}
	if failed := res.FailedHosts(); len(failed) != 1 || failed[0] != "10.0.0.2:22" {
		t.Errorf("unexpected failed host list: %v", failed)
	}
}

func TestSearchRemoteStderrBecomesHostFailure(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, _ string) (*sshpool.ExecResult, error) {
			return &sshpool.ExecResult{ExitCode: 2, Stderr: "grep: /var/log/app.log: Permission denied"}, nil
		},
	}
	o := newTestOrchestrator(runner)

	res, err := o.Search(context.Background(), testEntry("10.0.0.1"), keywordParams("err"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	host := res.Hosts[0]
	if host.Success {
		t.Errorf("nonzero exit with stderr must fail the host")
	}
	if !strings.Contains(host.Error, "Permission denied") {
		t.Errorf("host error must carry the remote diagnostics, got %q", host.Error)
	}
}

func TestSearchNoMatchesIsSuccess(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, _ string) (*sshpool.ExecResult, error) {
			// grep exits 1 on zero matches, stderr stays empty.
			return &sshpool.ExecResult{ExitCode: 1}, nil
		},
	}
	o := newTestOrchestrator(runner)

	res, err := o.Search(context.Background(), testEntry("10.0.0.1"), keywordParams("absent"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	host := res.Hosts[0]
	if !host.Success {
		t.Errorf("zero matches must still count as success, got error %q", host.Error)
	}
	if host.ResultCount != 0 {
		t.Errorf("expected no results, got %d", host.ResultCount)
	}
}

func TestSearchResolvesDatePlaceholders(t *testing.T) {
	runner := &fakeRunner{}
	o := newTestOrchestrator(runner)

	entry := testEntry("10.0.0.1")
	entry.Hosts[0].Path = "/var/log/app-{YYYY}-{MM}-{DD}.log"

	res, err := o.Search(context.Background(), entry, keywordParams("err"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if res.Hosts[0].FilePath != "/var/log/app-2025-09-08.log" {
		t.Errorf("unexpected resolved path: %q", res.Hosts[0].FilePath)
	}
	if !strings.Contains(runner.calls()[0], "'/var/log/app-2025-09-08.log'") {
		t.Errorf("command must use the resolved path, got %q", runner.calls()[0])
	}
}

func TestSearchResolvesSlicePlaceholderRemotely(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, command string) (*sshpool.ExecResult, error) {
			if strings.HasPrefix(command, "find ") {
				return okResult("/var/log/app.1.log\n/var/log/app.12.log\n"), nil
			}
			return okResult(""), nil
		},
	}
	o := newTestOrchestrator(runner)

	entry := testEntry("10.0.0.1")
	entry.Hosts[0].Path = "/var/log/app.{N}.log"

	res, err := o.Search(context.Background(), entry, keywordParams("err"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if res.Hosts[0].FilePath != "/var/log/app.12.log" {
		t.Errorf("expected the largest slice to win, got %q", res.Hosts[0].FilePath)
	}
}

func TestEffectivePathPrecedence(t *testing.T) {
	entry := testEntry("10.0.0.1")
	entry.Hosts[0].Path = "/var/log/host-default.log"

	params := keywordParams("x")

	// Host default wins when the filter is off.
	if got := effectivePath(entry, 0, params); got != "/var/log/host-default.log" {
		t.Errorf("expected host default, got %q", got)
	}

	params.UseFileFilter = true
	params.SelectedFile = "/var/log/single.log"
	if got := effectivePath(entry, 0, params); got != "/var/log/single.log" {
		t.Errorf("expected single selected file, got %q", got)
	}

	params.SelectedFiles = map[string]string{"10.0.0.1:22": "/var/log/by-host.log"}
	if got := effectivePath(entry, 0, params); got != "/var/log/by-host.log" {
		t.Errorf("expected host-keyed selection, got %q", got)
	}

	params.SelectedFiles["10.0.0.1:22|0"] = "/var/log/by-index.log"
	if got := effectivePath(entry, 0, params); got != "/var/log/by-index.log" {
		t.Errorf("expected indexed selection to win, got %q", got)
	}

	// Entry path is the last resort.
	entry.Hosts[0].Path = ""
	params.UseFileFilter = false
	if got := effectivePath(entry, 0, params); got != "/var/log/app.log" {
		t.Errorf("expected entry default, got %q", got)
	}
}

func TestClampLatest(t *testing.T) {
	in := []Match{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	out, truncated := clampLatest(in, 0, false)
	if truncated || len(out) != 3 {
		t.Errorf("zero cap must not clamp")
	}

	out, truncated = clampLatest(in, 2, false)
	if !truncated || out[0].Text != "b" {
		t.Errorf("forward clamp must keep the tail, got %+v", out)
	}

	out, truncated = clampLatest(in, 2, true)
	if !truncated || out[1].Text != "b" {
		t.Errorf("reverse clamp must keep the front, got %+v", out)
	}
}
