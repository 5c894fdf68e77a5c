package tunnel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/shlex"
)

// defaultCdFailure is reported when the remote shell rejects a "cd" without saying why.
const defaultCdFailure = "directory not found or permission denied"

// shellControl lists the sequences that make a "cd" more than a plain directory change.
var shellControl = []string{";", "&", "|", "<", ">", "`", "$(", "\n"}

// DirectoryTracker keeps the logical working directory of a session.
//
// Every remote invocation starts in a fresh shell, so the directory only persists
// because each command is rewritten to "cd" into it first.
type DirectoryTracker struct {
	mu       sync.RWMutex
	current  string
	previous string
}

// NewDirectoryTracker creates a tracker positioned at initial.
// An empty initial directory is reported as HomeMarker.
func NewDirectoryTracker(initial string) *DirectoryTracker {
	return &DirectoryTracker{current: strings.TrimSpace(initial)}
}

// Current returns the tracked directory, or HomeMarker if it was never resolved.
func (t *DirectoryTracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == "" {
		return HomeMarker
	}

	return t.current
}

// Previous returns the directory before the last successful change ("" if none).
func (t *DirectoryTracker) Previous() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.previous
}

// Qualify prefixes command so that it runs inside the tracked directory.
func (t *DirectoryTracker) Qualify(command string) string {
	t.mu.RLock()
	dir := t.current
	t.mu.RUnlock()

	return buildDirPrefix(dir) + command
}

// Rewrite classifies raw. A plain "cd" is resolved right away with r (in a
// single round trip that both changes and reports the directory); anything else
// comes back as OutcomePassThrough with its qualified command.
//
// The returned error is only set for transport failures; a refused "cd" is an
// OutcomeDirectoryChangeFailed.
func (t *DirectoryTracker) Rewrite(ctx context.Context, r Runner, raw string) (RewriteOutcome, error) {
	command := strings.TrimSpace(raw)

	args, ok := parseChangeDir(command)
	if !ok {
		return RewriteOutcome{Kind: OutcomePassThrough, Command: t.Qualify(command)}, nil
	}

	t.mu.RLock()
	current, previous := t.current, t.previous
	t.mu.RUnlock()

	path := strings.Join(args, " ")

	script, err := buildChangeDirScript(current, previous, command, args)
	if err != nil {
		return RewriteOutcome{Kind: OutcomeDirectoryChangeFailed, Path: path, Reason: err.Error()}, nil
	}

	res, err := r.Run(ctx, script)
	if err != nil {
		return RewriteOutcome{}, err
	}

	newDir := lastLine(string(res.Stdout))
	if !res.Success() || newDir == "" {
		reason := lastLine(string(res.Stderr))
		if reason == "" {
			reason = defaultCdFailure
		}

		return RewriteOutcome{Kind: OutcomeDirectoryChangeFailed, Path: path, Reason: reason}, nil
	}

	t.mu.Lock()
	old := t.current
	t.previous = t.current
	t.current = newDir
	t.mu.Unlock()

	if old == "" {
		old = HomeMarker
	}

	return RewriteOutcome{Kind: OutcomeDirectoryChanged, Path: path, Old: old, New: newDir}, nil
}

// parseChangeDir reports whether command is a plain "cd [dir]" and returns its arguments.
func parseChangeDir(command string) ([]string, bool) {
	if command != "cd" && !strings.HasPrefix(command, "cd ") && !strings.HasPrefix(command, "cd\t") {
		return nil, false
	}

	for _, op := range shellControl {
		if strings.Contains(command, op) {
			return nil, false
		}
	}

	parts, err := shlex.Split(command)
	if err != nil || len(parts) == 0 || parts[0] != "cd" || len(parts) > 2 {
		return nil, false
	}

	return parts[1:], true
}

// buildChangeDirScript builds "cd <cwd>; cd <target> && pwd".
//
// The operator's own "cd" text is reused verbatim so the remote shell expands "~"
// and variables. "cd -" is resolved locally because the fresh shell has no OLDPWD.
func buildChangeDirScript(current, previous, command string, args []string) (string, error) {
	target := command

	if len(args) == 1 && args[0] == "-" {
		if previous == "" {
			return "", errors.New("no previous directory")
		}

		target = "cd " + shellQuote(previous)
	}

	var b strings.Builder

	if current != "" && current != HomeMarker {
		// A vanished working directory must not prevent absolute changes.
		fmt.Fprintf(&b, "cd %s 2>/dev/null; ", shellQuote(current))
	}

	b.WriteString(target)
	b.WriteString(" && pwd")

	return b.String(), nil
}

// buildDirPrefix constructs the directory change prefix for a command.
func buildDirPrefix(dir string) string {
	if dir == "" || dir == HomeMarker {
		return ""
	}

	return fmt.Sprintf("cd %s && ", shellQuote(dir))
}

// shellQuote wraps s in single quotes, escaping embedded ones:  ' -> '\''
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")

	return strings.TrimSpace(lines[len(lines)-1])
}
