package ssh

import (
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// envName matches the variable names a POSIX shell accepts in "export".
var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// buildEnvPrefix turns KEY=VALUE pairs into "export KEY='VALUE'; " clauses.
// Servers usually refuse Setenv (PermitUserEnvironment=no), so the environment
// travels inside the script. Entries without "=" or with a name the shell
// would not accept are dropped, since the name is not quoted.
func buildEnvPrefix(envVars []string) string {
	var b strings.Builder

	for _, env := range envVars {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !envName.MatchString(name) {
			continue
		}

		b.WriteString("export ")
		b.WriteString(name)
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(value, "'", `'\''`))
		b.WriteString("'; ")
	}

	return b.String()
}

// buildTerminalModes keeps echo on and maps ^C to SIGINT, which is how Stop
// reaches the remote process.
func buildTerminalModes() ssh.TerminalModes {
	return ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.ISIG:          1,
		ssh.VINTR:         3,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
}

func buildFullCommand(env []string, script string) string {
	return buildEnvPrefix(env) + script
}
