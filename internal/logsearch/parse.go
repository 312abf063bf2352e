package logsearch

import (
	"regexp"
	"strconv"
	"strings"
)

// numberedLine captures grep -n output: line number, separator, text.
// grep uses ':' for matches and '-' for context lines; some builds emit
// '=' for the first context line of a group.
var numberedLine = regexp.MustCompile(`^(\d+)([:=-])(.*)$`)

// parseOutput splits raw pipeline output into matches. When numbered is
// set the grep line-number prefix is stripped and "--" group separators
// are dropped; otherwise every non-empty line passes through verbatim.
func parseOutput(raw string, numbered bool) []Match {
	if raw == "" {
		return nil
	}

	lines := strings.Split(raw, "\n")
	matches := make([]Match, 0, len(lines))

	for _, line := range lines {
		if line == "" {
			continue
		}

		if !numbered {
			matches = append(matches, Match{Text: line})
			continue
		}

		if line == "--" {
			continue
		}

		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			// Lines without the expected prefix still surface so nothing
			// silently disappears from the result.
			matches = append(matches, Match{Text: line})
			continue
		}

		n, _ := strconv.Atoi(m[1])
		matches = append(matches, Match{
			LineNumber: n,
			Text:       m[3],
			Context:    m[2] != ":",
		})
	}

	return matches
}

// clampLatest applies the MaxLines cap keeping the most recent lines.
// With reversed output the newest lines lead, so the front survives;
// in natural order they trail, so the tail survives.
func clampLatest(matches []Match, maxLines int, reversed bool) ([]Match, bool) {
	if maxLines <= 0 || len(matches) <= maxLines {
		return matches, false
	}
	if reversed {
		return matches[:maxLines], true
	}
	return matches[len(matches)-maxLines:], true
}
