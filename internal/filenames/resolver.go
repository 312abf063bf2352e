// Package filenames resolves date and slice placeholders in configured
// log paths into concrete remote paths.
//
// Supported placeholders: {YYYY} {MM} {DD} (substituted locally from the
// reference date) and {N} (resolved to the numerically largest matching
// file via a remote directory listing).
package filenames

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"opsdeck/internal/faults"
	"opsdeck/internal/logger"
)

// Runner executes one command on the remote host and returns its stdout.
// The pool's connections satisfy this.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

const slicePlaceholder = "{N}"

var placeholderRe = regexp.MustCompile(`\{[^}]+\}`)

var datePlaceholders = []struct {
	token  string
	format string
}{
	{"{YYYY}", "2006"},
	{"{MM}", "01"},
	{"{DD}", "02"},
}

// Resolved carries the concrete path plus whether a real slice file won.
// When no file matched, Path holds the deterministic N=0 default and
// Matched is false: likely absent, not an error.
type Resolved struct {
	Path    string
	Matched bool
}

// HasPlaceholders reports whether pattern needs resolving at all.
func HasPlaceholders(pattern string) bool {
	return placeholderRe.MatchString(pattern)
}

// Validate rejects unknown placeholders and duplicate {N} occurrences.
// It runs before any remote call.
func Validate(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return faults.New(faults.Validation, "path pattern is empty")
	}

	for _, ph := range placeholderRe.FindAllString(pattern, -1) {
		switch ph {
		case "{YYYY}", "{MM}", "{DD}", slicePlaceholder:
		default:
			return faults.Errorf(faults.Validation, "unknown placeholder %s in %q", ph, pattern)
		}
	}

	if n := strings.Count(pattern, slicePlaceholder); n > 1 {
		return faults.Errorf(faults.Validation, "slice placeholder {N} may appear once, found %d times in %q", n, pattern)
	}

	return nil
}

// Resolve expands pattern against referenceDate, consulting runner only
// when a {N} placeholder requires a remote listing.
func Resolve(ctx context.Context, pattern string, referenceDate time.Time, runner Runner) (Resolved, error) {
	if err := Validate(pattern); err != nil {
		return Resolved{}, err
	}

	resolved := substituteDates(pattern, referenceDate)

	if !strings.Contains(resolved, slicePlaceholder) {
		return Resolved{Path: resolved, Matched: true}, nil
	}

	if runner == nil {
		return Resolved{}, faults.New(faults.Validation, "slice placeholder {N} requires a remote runner")
	}

	return resolveSlice(ctx, resolved, runner)
}

func substituteDates(pattern string, date time.Time) string {
	for _, ph := range datePlaceholders {
		if strings.Contains(pattern, ph.token) {
			pattern = strings.ReplaceAll(pattern, ph.token, date.Format(ph.format))
		}
	}
	return pattern
}

// resolveSlice lists the pattern's directory restricted to the wildcarded
// name and keeps the file with the largest numeric N.
func resolveSlice(ctx context.Context, pattern string, runner Runner) (Resolved, error) {
	dir := path.Dir(pattern)
	base := path.Base(pattern)

	glob := strings.ReplaceAll(base, slicePlaceholder, "*")
	command := fmt.Sprintf("find %s -maxdepth 1 -name %s -type f 2>/dev/null || true",
		shellQuote(dir), shellQuote(glob))

	stdout, err := runner.Run(ctx, command)
	if err != nil {
		return Resolved{}, err
	}

	re := sliceRegexp(base)

	bestN := -1
	bestPath := ""
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := re.FindStringSubmatch(path.Base(line))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > bestN {
			bestN = n
			bestPath = line
		}
	}

	if bestPath == "" {
		fallback := strings.ReplaceAll(pattern, slicePlaceholder, "0")
		logger.Warn("no slice file matched %q, defaulting to %s", pattern, fallback)
		return Resolved{Path: fallback, Matched: false}, nil
	}

	logger.Debug("slice pattern %q resolved to %s (N=%d)", pattern, bestPath, bestN)
	return Resolved{Path: bestPath, Matched: true}, nil
}

// sliceRegexp escapes the literal parts of base and captures the {N}
// position as digits, anchored to the whole filename.
func sliceRegexp(base string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(base)
	expr := "^" + strings.Replace(escaped, regexp.QuoteMeta(slicePlaceholder), `(\d+)`, 1) + "$"
	return regexp.MustCompile(expr)
}

// shellQuote single-quotes s for the remote shell, the same way the
// search pipeline quotes its arguments.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
