package commands

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	execKeyPath      string
	execKeyPassEmpty bool
	execTimeout      time.Duration
)

var ExecCmd = &cobra.Command{
	Use:   "exec username@hostname[:port] command...",
	Short: "Run one command on a remote host",
	Long: `Run one command on a remote host through the connection pool. Output is
decoded with the host's detected encoding, so CJK locales print correctly.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		defer pool.Stop()

		endpoint, err := buildEndpoint(cmd, args[0], execKeyPath, execKeyPassEmpty)
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		command := strings.Join(args[1:], " ")

		result, err := pool.Run(context.Background(), endpoint, command, execTimeout)
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		if result.Stdout != "" {
			cmd.Printf("%s", result.Stdout)
			if !strings.HasSuffix(result.Stdout, "\n") {
				cmd.Printf("\n")
			}
		}
		if result.Stderr != "" {
			cmd.PrintErrf("%s", result.Stderr)
			if !strings.HasSuffix(result.Stderr, "\n") {
				cmd.PrintErrf("\n")
			}
		}
		if result.ExitCode != 0 {
			cmd.PrintErrf("❌ Command exited with status %d\n", result.ExitCode)
		}
	},
}

func init() {
	ExecCmd.Flags().StringVar(&execKeyPath, "key", "", "Path to an SSH private key")
	ExecCmd.Flags().BoolVar(&execKeyPassEmpty, "key-pass-empty", false, "Assume an unencrypted SSH private key (skip the passphrase prompt)")
	ExecCmd.Flags().DurationVar(&execTimeout, "timeout", 30*time.Second, "Command timeout")
}
