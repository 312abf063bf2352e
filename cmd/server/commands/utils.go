package commands

import (
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"opsdeck/internal/logentries"
	"opsdeck/internal/sshpool"
)

func readPasswordSecurely(prompt string, stdOut io.Writer, errOut io.Writer, promptToErr bool) (string, error) {
	// readPasswordSecurely reads a password from the terminal without echoing
	if promptToErr {
		fmt.Fprintf(errOut, "%s", prompt)
	} else {
		fmt.Fprintf(stdOut, "%s", prompt)
	}

	bytePassword, err := term.ReadPassword(int(syscall.Stdin))

	if promptToErr {
		fmt.Fprintf(errOut, "\n")
	} else {
		fmt.Fprintf(stdOut, "\n")
	}

	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// buildEndpoint resolves a username@hostname[:port] argument plus key/password
// flags into a connectable endpoint, prompting for secrets as needed.
func buildEndpoint(cmd *cobra.Command, target string, keyPath string, keyPassEmpty bool) (sshpool.Endpoint, error) {
	endpoint, err := logentries.ParseTarget(target)
	if err != nil {
		return sshpool.Endpoint{}, err
	}

	if keyPath != "" {
		endpoint.PrivateKeyPath = keyPath

		if !keyPassEmpty {
			passphrase, err := readPasswordSecurely("🔑 Enter SSH key passphrase (empty for none): ",
				cmd.OutOrStdout(), cmd.ErrOrStderr(), true)
			if err != nil {
				return sshpool.Endpoint{}, fmt.Errorf("failed to read passphrase: %v", err)
			}
			endpoint.Passphrase = passphrase
		}

		return endpoint, nil
	}

	password, err := readPasswordSecurely(fmt.Sprintf("🔑 Enter SSH password for %s: ", target),
		cmd.OutOrStdout(), cmd.ErrOrStderr(), true)
	if err != nil {
		return sshpool.Endpoint{}, fmt.Errorf("failed to read password: %v", err)
	}
	endpoint.Password = password

	return endpoint, nil
}
