package commands

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"opsdeck/internal/logsearch"
)

var (
	searchMode     string
	searchContext  int
	searchRegex    bool
	searchReverse  bool
	searchMaxLines int
	searchFile     string
)

var SearchCmd = &cobra.Command{
	Use:   "search name [keyword]",
	Short: "Search a log entry across its hosts",
	Long: `Search a named log entry across all of its hosts concurrently.

Modes: keyword (matching lines), context (matching lines with surrounding
context, see --context), tail (most recent lines, no matching). An empty
keyword behaves like tail.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		defer pool.Stop()

		entry, err := entriesRepository.GetByName(args[0])
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		keyword := ""
		if len(args) == 2 {
			keyword = args[1]
		}

		params := logsearch.SearchParams{
			Keyword:      keyword,
			Mode:         logsearch.Mode(searchMode),
			ContextSpan:  searchContext,
			UseRegex:     searchRegex,
			ReverseOrder: searchReverse,
			MaxLines:     searchMaxLines,
		}
		if searchFile != "" {
			params.UseFileFilter = true
			params.SelectedFile = searchFile
		}

		result, err := orchestrator.Search(context.Background(), entry.SearchEntry(), params)
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		for _, host := range result.Hosts {
			if !host.Success {
				cmd.PrintErrf("❌ [%d] %s: %s\n", host.HostIndex, host.Host, host.Error)
				continue
			}

			header := host.FilePath
			if host.Truncated {
				cmd.Printf("=== [%d] %s %s (%d of %d lines, truncated)\n",
					host.HostIndex, host.Host, header, host.ResultCount, host.OriginalCount)
			} else {
				cmd.Printf("=== [%d] %s %s (%d lines)\n",
					host.HostIndex, host.Host, header, host.ResultCount)
			}

			for _, match := range host.Matches {
				if match.LineNumber > 0 {
					sep := ":"
					if match.Context {
						sep = "-"
					}
					cmd.Printf("%d%s%s\n", match.LineNumber, sep, match.Text)
				} else {
					cmd.Printf("%s\n", match.Text)
				}
			}
		}

		summary := []string{}
		if failed := result.FailedHosts(); len(failed) > 0 {
			summary = append(summary, "failed: "+strings.Join(failed, ", "))
		}
		if result.AnyTruncated() {
			summary = append(summary, "some hosts truncated")
		}

		cmd.Printf("--- %d line(s) across %d host(s) in %s",
			result.TotalResults(), len(result.Hosts), result.Duration.Round(time.Millisecond))
		if len(summary) > 0 {
			cmd.Printf(" (%s)", strings.Join(summary, "; "))
		}
		cmd.Printf("\n")
	},
}

func init() {
	SearchCmd.Flags().StringVar(&searchMode, "mode", "keyword", "Search mode: keyword, context or tail")
	SearchCmd.Flags().IntVar(&searchContext, "context", 0, "Context lines around matches (context mode, 0-50)")
	SearchCmd.Flags().BoolVar(&searchRegex, "regex", false, "Treat the keyword as an extended regular expression")
	SearchCmd.Flags().BoolVar(&searchReverse, "reverse", false, "Newest lines first")
	SearchCmd.Flags().IntVar(&searchMaxLines, "max-lines", 0, "Per-host line cap, keeping the most recent (0 = pipeline ceiling)")
	SearchCmd.Flags().StringVar(&searchFile, "file", "", "Search this file instead of the configured path")
}
