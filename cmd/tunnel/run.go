package main

import (
	"context"
	"io"
	"strings"

	"github.com/ruffel/tunnel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "run TARGET -- COMMAND...",
		Short: "Run one command and exit with its status",
		Long: `run connects to TARGET (user@host[:port] or an ssh_config alias), runs COMMAND
in the login directory and streams its output. The remote exit code becomes the
exit code of tunnel.`,
		Example: `  tunnel run deploy@web1 -- systemctl status nginx
  tunnel run --transport local me@localhost -- 'ls -la | head'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}

			defer a.close(cmd.Context())

			target, err := a.resolveTarget(args[0], password)
			if err != nil {
				return err
			}

			code, err := runOnce(cmd.Context(), a.manager, a.settings.Identity, target, strings.Join(args[1:], " "), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if code != 0 {
				cmd.SilenceErrors = true

				return &exitCodeError{code: code}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password for the target (default TUNNEL_SSH_PASSWORD)")

	return cmd
}

// runOnce connects, executes command and disconnects, streaming output to out.
// It returns the remote exit code, or 1 when the command was interrupted.
func runOnce(ctx context.Context, mgr *tunnel.Manager, identity string, target tunnel.Target, command string, out io.Writer) (int, error) {
	if _, err := mgr.Connect(ctx, identity, target); err != nil {
		return 0, err
	}

	defer func() { _, _ = mgr.Disconnect(context.WithoutCancel(ctx), identity) }()

	var printed int

	emit := func(output string) {
		if len(output) > printed {
			_, _ = io.WriteString(out, output[printed:])
			printed = len(output)
		}
	}

	res, err := mgr.Execute(ctx, identity, command, func(_ string, output string) {
		emit(output)
	})
	if res == nil {
		return 0, err
	}

	emit(res.Output)

	if printed > 0 && !strings.HasSuffix(res.Output, "\n") {
		_, _ = io.WriteString(out, "\n")
	}

	if err != nil {
		return 0, err
	}

	if res.ExitCode < 0 {
		return 1, nil
	}

	return res.ExitCode, nil
}
