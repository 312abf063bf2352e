package commands

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/spf13/cobra"

	"opsdeck/internal/logentries"
)

var (
	logsAddDescription string
	logsAddGroup       string
	logsAddKeyPath     string
	logsAddPath        string
)

var LogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Manage named log entries",
	Long:  `Manage named log entries: a log path plus the SSH hosts it lives on. Search commands refer to entries by name.`,
}

var AddLogCmd = &cobra.Command{
	Use:   "add name path username@hostname[:port] [username@hostname[:port]...]",
	Short: "Add a log entry",
	Long: `Add a log entry with one or more hosts. The path may contain {YYYY}/{MM}/{DD} date
placeholders and one {N} slice placeholder, resolved per host at search time.
You will be prompted for the SSH password of each host (skipped when --key is given).`,
	Args: cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		entry := &logentries.LogEntry{
			Name:        args[0],
			Path:        args[1],
			Description: logsAddDescription,
			Group:       logsAddGroup,
		}

		for _, target := range args[2:] {
			endpoint, err := buildEndpoint(cmd, target, logsAddKeyPath, false)
			if err != nil {
				cmd.PrintErrf("❌ Error: %v\n", err)
				return
			}
			entry.Hosts = append(entry.Hosts, logentries.HostConfig{
				Host:           endpoint.Host,
				Port:           endpoint.Port,
				Username:       endpoint.Username,
				Password:       endpoint.Password,
				PrivateKeyPath: endpoint.PrivateKeyPath,
				Passphrase:     endpoint.Passphrase,
			})
		}

		if err := entriesRepository.Create(entry); err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		cmd.Printf("✅ Log entry %q added with %d host(s)\n", entry.Name, len(entry.Hosts))
	},
}

var ListLogsCmd = &cobra.Command{
	Use:   "list",
	Short: "List log entries",
	Run: func(cmd *cobra.Command, _ []string) {
		entries, err := entriesRepository.GetAll()
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		if len(entries) == 0 {
			cmd.Printf("No log entries configured\n")
			return
		}

		for _, entry := range entries {
			cmd.Printf("%s  %s\n", entry.Name, entry.Path)
			if entry.Description != "" {
				cmd.Printf("    %s\n", entry.Description)
			}
			for i, host := range entry.Hosts {
				line := fmt.Sprintf("    [%d] %s", i, logentries.TargetString(host.Endpoint()))
				if host.Path != "" {
					line += "  " + host.Path
				}
				cmd.Printf("%s\n", line)
			}
		}
	},
}

var RemoveLogCmd = &cobra.Command{
	Use:   "remove name",
	Short: "Remove a log entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := entriesRepository.Delete(args[0]); err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}
		cmd.Printf("✅ Log entry %q removed\n", args[0])
	},
}

var LogFilesCmd = &cobra.Command{
	Use:   "files name [hostIndex]",
	Short: "List files in a log entry's directory on one host",
	Long:  `List the files next to a log entry's configured path on one of its hosts. hostIndex defaults to 0.`,
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		defer pool.Stop()

		hostIndex := 0
		if len(args) == 2 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil {
				cmd.PrintErrf("❌ Error: invalid host index %q\n", args[1])
				return
			}
			hostIndex = parsed
		}

		endpoint, logPath, err := entriesRepository.Lookup(args[0], hostIndex)
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		dir := logsAddPath
		if dir == "" {
			dir = path.Dir(logPath)
		}

		files, err := orchestrator.ListFiles(context.Background(), endpoint, dir)
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		cmd.Printf("%s on %s:\n", dir, endpoint.Addr())
		for _, file := range files {
			cmd.Printf("  %10d  %s  %s\n", file.Size, file.ModTime.Format("2006-01-02 15:04"), file.Name)
		}
	},
}

func init() {
	AddLogCmd.Flags().StringVar(&logsAddDescription, "description", "", "Free-form description of the log entry")
	AddLogCmd.Flags().StringVar(&logsAddGroup, "group", "", "Group label for related entries")
	AddLogCmd.Flags().StringVar(&logsAddKeyPath, "key", "", "Path to an SSH private key used for all hosts")

	LogFilesCmd.Flags().StringVar(&logsAddPath, "dir", "", "Directory to list instead of the entry's own")

	LogsCmd.AddCommand(AddLogCmd)
	LogsCmd.AddCommand(ListLogsCmd)
	LogsCmd.AddCommand(RemoveLogCmd)
	LogsCmd.AddCommand(LogFilesCmd)
}
