package logsearch

import (
	"fmt"
	"strings"
)

// resultCeiling is the hard per-host clamp applied on the remote side,
// independent of the caller's MaxLines.
const resultCeiling = 10000

// tailDefaultLines is the window used by tail mode and by keyword mode
// when no keyword was given.
const tailDefaultLines = 100

// decompressors maps recognized compressed extensions to the transparent
// decompress stage prepended instead of reading the raw file.
var decompressors = map[string]string{
	".gz":  "gzip -dc",
	".bz2": "bzip2 -dc",
	".xz":  "xz -dc",
}

// stage is one typed step of the remote shell pipeline. Stages are
// assembled by buildPipeline and serialized to shell text only in render,
// which keeps quoting in one place and stage selection testable.
type stage interface {
	render() string
}

type decompressStage struct {
	tool string
	path string
}

func (s decompressStage) render() string {
	return fmt.Sprintf("%s %s 2>/dev/null", s.tool, shellQuote(s.path))
}

type tailStage struct {
	lines int
	// path is empty when tail reads from the preceding stage.
	path string
}

func (s tailStage) render() string {
	if s.path == "" {
		return fmt.Sprintf("tail -n %d", s.lines)
	}
	return fmt.Sprintf("tail -n %d %s", s.lines, shellQuote(s.path))
}

type grepStage struct {
	keyword     string
	regex       bool
	contextSpan int
	// path is empty when grep reads from the preceding stage.
	path string
}

func (s grepStage) render() string {
	cmd := "grep -nF"
	if s.regex {
		cmd = "grep -nE"
	}
	if s.contextSpan > 0 {
		cmd += fmt.Sprintf(" -C %d", s.contextSpan)
	}
	cmd += " " + shellQuote(s.keyword)
	if s.path != "" {
		cmd += " " + shellQuote(s.path)
	}
	return cmd
}

type limitStage struct {
	lines int
}

func (s limitStage) render() string {
	return fmt.Sprintf("head -n %d", s.lines)
}

// reverseLimitStage bounds the window before reversing so tac never
// chews through an unbounded match set.
type reverseLimitStage struct {
	lines int
	tool  string
}

func (s reverseLimitStage) render() string {
	return fmt.Sprintf("tail -n %d | %s", s.lines, s.tool)
}

type reverseStage struct {
	tool string
}

func (s reverseStage) render() string {
	return s.tool
}

// pipeline is the ordered stage sequence for one host.
type pipeline struct {
	stages []stage
	// numbered records whether the match stage asked for line numbers,
	// so the parser only strips numbering it knows is there.
	numbered bool
}

func (p *pipeline) render() string {
	parts := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		parts = append(parts, s.render())
	}
	return strings.Join(parts, " | ")
}

// buildPipeline assembles the per-host pipeline for an already-resolved
// path. reverseTool is the probed per-endpoint reverse filter; it is only
// consulted when params ask for reverse order.
func buildPipeline(path string, params SearchParams, reverseTool string) *pipeline {
	p := &pipeline{}

	decompressor := decompressorFor(path)
	piped := decompressor != ""
	if piped {
		p.stages = append(p.stages, decompressStage{tool: decompressor, path: path})
	}

	// Tail mode, and keyword/context mode without a keyword, both degrade
	// to a bounded window of the most recent lines.
	if params.Mode == ModeTail || params.Keyword == "" {
		lines := tailDefaultLines
		if params.Mode == ModeTail && params.ContextSpan > lines {
			lines = params.ContextSpan
		}

		if piped {
			p.stages = append(p.stages, tailStage{lines: lines})
		} else {
			p.stages = append(p.stages, tailStage{lines: lines, path: path})
		}

		if params.ReverseOrder {
			p.stages = append(p.stages, reverseStage{tool: reverseTool})
		}
		return p
	}

	g := grepStage{keyword: params.Keyword, regex: params.UseRegex}
	if params.Mode == ModeContext && params.ContextSpan > 0 {
		g.contextSpan = params.ContextSpan
	}
	if !piped {
		g.path = path
	}
	p.stages = append(p.stages, g)
	p.numbered = true

	if params.ReverseOrder {
		p.stages = append(p.stages, reverseLimitStage{lines: resultCeiling, tool: reverseTool})
	} else {
		p.stages = append(p.stages, limitStage{lines: resultCeiling})
	}

	return p
}

func decompressorFor(path string) string {
	for ext, tool := range decompressors {
		if strings.HasSuffix(path, ext) {
			return tool
		}
	}
	return ""
}

// shellQuote single-quotes s for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
