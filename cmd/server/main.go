package main

import (
	"fmt"
	"opsdeck/cmd/server/commands"
	"opsdeck/cmd/server/config"
	"opsdeck/internal/database"
	"opsdeck/version"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "opsdeck",
	Short: "Operations console for multi-host log search and remote terminals",
	Long: `opsdeck is an operations console core for fleets reached over SSH: it keeps a
pool of reusable SSH connections, searches log files across many hosts at once,
and drives interactive terminal sessions with automatic encoding detection for
mixed-locale environments.

Key concepts:

- LOG ENTRY - a named log path plus the SSH hosts it lives on. Paths may carry
  {YYYY}/{MM}/{DD} date placeholders and one {N} slice placeholder resolved to
  the newest numbered file on each host.
- SEARCH - one request fanned out across an entry's hosts; per-host failures
  never abort the batch, and results come back in configured host order.
- TERMINAL - a dedicated interactive shell session, independent of the pooled
  command connections, reaped automatically when idle.

Getting started:

1. Register a log entry:

opsdeck logs add nginx /var/log/nginx/access.log ops@140.120.110.10:22

2. Search it across all of its hosts:

opsdeck search nginx "upstream timed out" --mode context --context 3

3. Or open a terminal on a host:

opsdeck shell ops@140.120.110.10:22
`,
	Version: fmt.Sprintf("%s (commit: %s, date: %s, arch: %s, os: %s); db path: %s; profile: %s",
		version.Version, version.Commit, version.Date, version.Arch, version.OS, config.DatabasePath, config.OpsdeckProfile),
}

func main() {
	db, err := database.InitDB(config.Config.DatabasePath)

	if err != nil {
		rootCmd.PrintErrf("Failed to initialize database at %s: %v\n", config.Config.DatabasePath, err)
	}

	commands.RegisterCommands(rootCmd, db)

	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrf("%v\n", err)
	}

	defer func() {
		if err := database.CloseDB(db); err != nil {
			rootCmd.PrintErrf("Failed to close database: %v\n", err)
		}
	}()
}
