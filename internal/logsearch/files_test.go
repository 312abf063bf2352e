package logsearch

import (
	"context"
	"strings"
	"testing"
	"time"

	"opsdeck/internal/sshpool"
)

func TestListFilesParsesFindOutput(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, command string) (*sshpool.ExecResult, error) {
			if strings.Contains(command, "-printf") {
				return okResult("app.log\t2048\t1757337600.123\nold.log\t10\t1700000000.0\n"), nil
			}
			return &sshpool.ExecResult{ExitCode: 1}, nil
		},
	}
	o := newTestOrchestrator(runner)

	files, err := o.ListFiles(context.Background(), sshpool.Endpoint{Host: "10.0.0.1", Port: 22, Username: "ops"}, "/var/log")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Path != "/var/log/app.log" || files[0].Size != 2048 {
		t.Errorf("unexpected first file: %+v", files[0])
	}
	if files[0].ModTime != time.Unix(1757337600, 0) {
		t.Errorf("fractional epoch must be truncated, got %v", files[0].ModTime)
	}
}

func TestListFilesFallsBackToStat(t *testing.T) {
	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, command string) (*sshpool.ExecResult, error) {
			switch {
			case strings.Contains(command, "-printf"):
				// GNU-only flag rejected on BSD userlands.
				return &sshpool.ExecResult{ExitCode: 1, Stderr: "find: -printf: unknown primary"}, nil
			case strings.Contains(command, "stat -f"):
				return okResult("/var/log/app.log\t2048\t1757337600\n"), nil
			}
			return &sshpool.ExecResult{ExitCode: 1}, nil
		},
	}
	o := newTestOrchestrator(runner)

	files, err := o.ListFiles(context.Background(), sshpool.Endpoint{Host: "10.0.0.1", Port: 22, Username: "ops"}, "/var/log")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}

	if len(files) != 1 || files[0].Name != "app.log" || files[0].Size != 2048 {
		t.Errorf("unexpected stat fallback result: %+v", files)
	}
}

func TestListFilesLastResortLs(t *testing.T) {
	lsOut := strings.Join([]string{
		"total 16",
		"drwxr-xr-x  2 root root 4096 Sep  8 11:00 .",
		"-rw-r--r--  1 root root 2048 Sep  8 11:59 app.log",
		"-rw-r--r--  1 root root   10 Jan  3 2024 archived name.log",
		"lrwxrwxrwx  1 root root    7 Sep  8 11:00 latest -> app.log",
	}, "\n")

	runner := &fakeRunner{
		respond: func(_ sshpool.Endpoint, command string) (*sshpool.ExecResult, error) {
			if strings.HasPrefix(strings.TrimSpace(command), "ls -la") {
				return okResult(lsOut), nil
			}
			return &sshpool.ExecResult{ExitCode: 1}, nil
		},
	}
	o := newTestOrchestrator(runner)

	files, err := o.ListFiles(context.Background(), sshpool.Endpoint{Host: "10.0.0.1", Port: 22, Username: "ops"}, "/var/log")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("only regular files must survive the ls parse, got %+v", files)
	}
	if files[1].Name != "archived name.log" {
		t.Errorf("names with spaces must be rejoined, got %q", files[1].Name)
	}
	if files[1].ModTime.Year() != 2024 {
		t.Errorf("year-form ls timestamp must parse, got %v", files[1].ModTime)
	}
}

func TestListFilesEmptyDirRejected(t *testing.T) {
	o := newTestOrchestrator(&fakeRunner{})
	if _, err := o.ListFiles(context.Background(), sshpool.Endpoint{Host: "h", Port: 22}, ""); err == nil {
		t.Fatalf("empty directory must be rejected")
	}
}
