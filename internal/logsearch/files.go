package logsearch

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"opsdeck/internal/faults"
	"opsdeck/internal/logger"
	"opsdeck/internal/sshpool"
)

// FileInfo is one regular file in a remote log directory.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// ListFiles enumerates the regular files in a remote directory, trying
// GNU find's -printf first, then BSD stat, then a plain ls parse. The
// first command that produces parseable output wins.
func (o *Orchestrator) ListFiles(ctx context.Context, endpoint sshpool.Endpoint, dir string) ([]FileInfo, error) {
	if dir == "" {
		return nil, faults.New(faults.Validation, "directory must not be empty")
	}

	attempts := []struct {
		command string
		parse   func(raw, dir string) []FileInfo
	}{
		{
			command: fmt.Sprintf(`find %s -maxdepth 1 -type f -printf '%%f\t%%s\t%%T@\n' 2>/dev/null`, shellQuote(dir)),
			parse:   parseFindListing,
		},
		{
			command: fmt.Sprintf(`find %s -maxdepth 1 -type f -exec stat -f '%%N%%t%%z%%t%%m' {} + 2>/dev/null`, shellQuote(dir)),
			parse:   parseStatListing,
		},
		{
			command: fmt.Sprintf(`ls -la %s 2>/dev/null`, shellQuote(dir)),
			parse:   parseLsListing,
		},
	}

	var lastErr error
	for _, attempt := range attempts {
		res, err := o.runner.Run(ctx, endpoint, attempt.command, o.timeout)
		if err != nil {
			lastErr = err
			continue
		}
		if res.ExitCode != 0 {
			continue
		}
		if files := attempt.parse(res.Stdout, dir); files != nil {
			return files, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	logger.Debug("no listing strategy produced output for %s:%s", endpoint.Addr(), dir)
	return nil, faults.Errorf(faults.NotFound, "no files listed under %s", dir)
}

// parseFindListing reads "name\tsize\tepoch" lines from GNU find. The
// epoch carries a fractional part that is dropped.
func parseFindListing(raw, dir string) []FileInfo {
	var files []FileInfo
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			continue
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		epoch, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    parts[0],
			Path:    path.Join(dir, parts[0]),
			Size:    size,
			ModTime: time.Unix(int64(epoch), 0),
		})
	}
	return files
}

// parseStatListing reads "path\tsize\tepoch" lines from BSD stat.
func parseStatListing(raw, dir string) []FileInfo {
	var files []FileInfo
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			continue
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		epoch, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		name := path.Base(parts[0])
		files = append(files, FileInfo{
			Name:    name,
			Path:    path.Join(dir, name),
			Size:    size,
			ModTime: time.Unix(epoch, 0),
		})
	}
	return files
}

// parseLsListing is the last-resort parse of "ls -la" output. Only
// regular files are kept and the coarse ls timestamp is accepted as is.
func parseLsListing(raw, dir string) []FileInfo {
	var files []FileInfo
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 9 || !strings.HasPrefix(fields[0], "-") {
			continue
		}
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		name := strings.Join(fields[8:], " ")
		files = append(files, FileInfo{
			Name:    name,
			Path:    path.Join(dir, name),
			Size:    size,
			ModTime: parseLsTime(fields[5], fields[6], fields[7]),
		})
	}
	return files
}

// parseLsTime handles both ls timestamp shapes: "Jan 2 15:04" for
// recent files and "Jan 2 2006" for older ones.
func parseLsTime(month, day, rest string) time.Time {
	joined := month + " " + day + " " + rest
	if strings.Contains(rest, ":") {
		t, err := time.Parse("Jan 2 15:04", joined)
		if err != nil {
			return time.Time{}
		}
		return t.AddDate(time.Now().Year(), 0, 0)
	}
	t, err := time.Parse("Jan 2 2006", joined)
	if err != nil {
		return time.Time{}
	}
	return t
}
