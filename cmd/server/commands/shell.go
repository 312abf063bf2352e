package commands

import (
	"bufio"
	"context"
	"time"

	"github.com/spf13/cobra"

	"opsdeck/internal/terminals"
)

var (
	shellKeyPath      string
	shellKeyPassEmpty bool
	shellLocale       string
	shellInitial      string
)

var ShellCmd = &cobra.Command{
	Use:   "shell username@hostname[:port]",
	Short: "Open an interactive terminal session on a remote host",
	Long: `Open an interactive terminal session on a remote host. Lines typed here are
sent as commands; output is polled and printed as it arrives. Type "exit" to
end the session. The session is reaped automatically if it idles too long.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		endpoint, err := buildEndpoint(cmd, args[0], shellKeyPath, shellKeyPassEmpty)
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		engine.StartReaper()
		defer engine.Stop()

		closed := make(chan terminals.CloseSummary, 1)
		engine.RegisterCloseListener(func(summary terminals.CloseSummary) {
			select {
			case closed <- summary:
			default:
			}
		})

		session, err := engine.Open(context.Background(), endpoint, shellInitial)
		if err != nil {
			cmd.PrintErrf("❌ Error: %v\n", err)
			return
		}

		if shellLocale != "" {
			if err := engine.SetLocale(session.ID, shellLocale); err != nil {
				cmd.PrintErrf("⚠️  Locale setup failed: %v\n", err)
			}
		}

		// Output pump: poll-and-drain until the session goes away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				out, err := engine.GetOutput(session.ID)
				if out != "" {
					cmd.Printf("%s", out)
				}
				if err != nil {
					return
				}
				if status := session.Status(); status == terminals.StatusDisconnected || status == terminals.StatusError {
					if tail, _ := engine.GetOutput(session.ID); tail != "" {
						cmd.Printf("%s", tail)
					}
					return
				}
				time.Sleep(100 * time.Millisecond)
			}
		}()

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := scanner.Text()
			if line == "exit" {
				break
			}
			if err := engine.SendCommand(session.ID, line); err != nil {
				cmd.PrintErrf("❌ Error: %v\n", err)
				break
			}
		}

		summary, err := engine.Close(session.ID)
		if err == nil {
			cmd.Printf("\n✅ Session closed after %s, %d command(s)\n",
				summary.Duration.Round(time.Second), summary.CommandsExecuted)
		}
		<-done
	},
}

func init() {
	ShellCmd.Flags().StringVar(&shellKeyPath, "key", "", "Path to an SSH private key")
	ShellCmd.Flags().BoolVar(&shellKeyPassEmpty, "key-pass-empty", false, "Assume an unencrypted SSH private key (skip the passphrase prompt)")
	ShellCmd.Flags().StringVar(&shellLocale, "locale", "", "Remote locale to export, or \"auto\" to probe for a UTF-8 one")
	ShellCmd.Flags().StringVar(&shellInitial, "command", "", "Command to run right after the shell opens")
}
