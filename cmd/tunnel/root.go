package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exitCodeError carries a remote exit code out of a subcommand.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	var cfgFile string

	cmd := &cobra.Command{
		Use:   "tunnel",
		Short: "Interactive remote command sessions",
		Long: `tunnel keeps a session to a remote account open and runs commands in it
one at a time, streaming their output while they run.

Without a subcommand it starts a console that reads slash commands from stdin.
Type /help inside the console for the list.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}

			defer a.close(cmd.Context())

			return a.console(cmd.InOrStdin(), cmd.OutOrStdout()).run(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default $HOME/.config/tunnel/config.yaml)")
	flags.StringP("transport", "t", transportSSH, "transport to connect with: ssh, local or docker")
	flags.StringP("identity", "i", "", "operator identity sessions are registered under (default current user)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.String("key", "", "SSH private key file")
	flags.Bool("agent", true, "use the SSH agent at SSH_AUTH_SOCK")
	flags.String("known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	flags.Bool("insecure", false, "skip SSH host key verification (testing only)")
	flags.String("ssh-config", "", "ssh_config file used to resolve host aliases (default ~/.ssh/config)")
	flags.String("shell", "/bin/sh", "shell used by the local transport")
	flags.String("docker-host", "", "Docker daemon address (default from DOCKER_HOST)")
	flags.Duration("interrupt-wait", 0, "how long stop waits for an interrupt before forcing (default 500ms)")

	cobra.CheckErr(bindFlags(v, flags))

	cmd.AddCommand(newRunCmd(v))

	return cmd
}
