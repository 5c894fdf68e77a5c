package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ruffel/tunnel"
)

const helpText = `/connect user@host[:port] [password]  open a session (a bare name is an ssh_config alias)
/execute <command>                    run a command in the background
/stop                                 interrupt the running command
/input <text>                         send a line to the running command
/tail                                 show the latest output of the running command
/pwd                                  show the working directory
/ls                                   list the working directory
/status                               describe the session
/upload <local> <remote>              copy a file into the session
/download <remote> <local>            copy a file out of the session
/disconnect                           close the session
/quit                                 leave the console

Plain text runs as a command, or is sent as input while one is running.`

var errQuit = errors.New("quit")

type targetResolver func(spec, password string) (tunnel.Target, error)

// console is a line-oriented front end for one operator identity.
type console struct {
	manager  *tunnel.Manager
	identity string
	resolve  targetResolver
	preview  int

	in io.Reader

	mu  sync.Mutex // guards out
	out io.Writer

	wg sync.WaitGroup
}

func newConsole(mgr *tunnel.Manager, identity string, resolve targetResolver, preview int, in io.Reader, out io.Writer) *console {
	return &console{
		manager:  mgr,
		identity: identity,
		resolve:  resolve,
		preview:  preview,
		in:       in,
		out:      out,
	}
}

// run reads commands until EOF or /quit, then waits for background executions.
func (c *console) run(ctx context.Context) error {
	c.println(titleStyle.Render("tunnel console") + " " + infoStyle.Render("(type /help)"))

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := c.dispatch(ctx, line); errors.Is(err, errQuit) {
			break
		}
	}

	c.wg.Wait()

	return scanner.Err()
}

func (c *console) dispatch(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		if info, err := c.manager.Status(c.identity); err == nil && info.Active != nil {
			c.sendInput(line)
		} else {
			c.execute(ctx, line)
		}

		return nil
	}

	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch name {
	case "/help", "/start":
		c.println(helpText)
	case "/connect":
		c.connect(ctx, args)
	case "/execute", "/exec":
		if args == "" {
			c.fail("usage: /execute <command>")

			return nil
		}

		c.execute(ctx, args)
	case "/stop":
		c.stop()
	case "/input":
		if args == "" {
			c.fail("usage: /input <text>")

			return nil
		}

		c.sendInput(args)
	case "/tail":
		c.tail()
	case "/pwd":
		c.pwd()
	case "/ls":
		c.execute(ctx, "ls -la")
	case "/status":
		c.status()
	case "/upload":
		c.transfer(ctx, args, c.manager.Upload)
	case "/download":
		c.transfer(ctx, args, c.manager.Download)
	case "/disconnect":
		c.disconnect(ctx)
	case "/quit", "/exit":
		return errQuit
	default:
		c.fail(fmt.Sprintf("unknown command %s, try /help", name))
	}

	return nil
}

func (c *console) connect(ctx context.Context, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		c.fail("usage: /connect user@host[:port] [password]")

		return
	}

	var password string
	if len(fields) == 2 {
		password = fields[1]
	}

	target, err := c.resolve(fields[0], password)
	if err != nil {
		c.fail(err.Error())

		return
	}

	c.println(infoStyle.Render("connecting to " + target.String() + "..."))

	info, err := c.manager.Connect(ctx, c.identity, target)
	if err != nil {
		c.fail(describe(err))

		return
	}

	c.println(checkStyle.Render(fmt.Sprintf("connected to %s in %s", info.Target, info.Directory)))
}

// execute runs command in the background, printing output as it arrives.
func (c *console) execute(ctx context.Context, command string) {
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var printed int

		emit := func(output string) {
			if len(output) > printed {
				c.print(output[printed:])
				printed = len(output)
			}
		}

		res, err := c.manager.Execute(ctx, c.identity, command, func(_ string, output string) {
			emit(output)
		})
		if res == nil {
			c.fail(describe(err))

			return
		}

		if res.Outcome.Kind != tunnel.OutcomePassThrough {
			if res.Success() {
				c.println(checkStyle.Render(res.Output))
			} else {
				c.fail(res.Output)
			}

			return
		}

		emit(res.Output)

		if printed > 0 && !strings.HasSuffix(res.Output, "\n") {
			c.print("\n")
		}

		c.println(summarize(res, err))
	}()
}

func summarize(res *tunnel.ExecResult, err error) string {
	elapsed := res.Duration.Round(time.Millisecond)

	switch {
	case err != nil:
		return errorStyle.Render(fmt.Sprintf("%q %s after %s: %s", res.Command, res.Status, elapsed, describe(err)))
	case res.Status == tunnel.StatusInterrupted:
		return warnStyle.Render(fmt.Sprintf("%q interrupted after %s", res.Command, elapsed))
	case res.ExitCode != 0:
		return errorStyle.Render(fmt.Sprintf("%q exited with %d after %s", res.Command, res.ExitCode, elapsed))
	default:
		return checkStyle.Render(fmt.Sprintf("%q completed in %s", res.Command, elapsed))
	}
}

func (c *console) stop() {
	command, err := c.manager.Stop(c.identity)
	if err != nil {
		c.fail(describe(err))

		return
	}

	c.println(warnStyle.Render(fmt.Sprintf("stopped %q", command)))
}

func (c *console) sendInput(text string) {
	if err := c.manager.SendInput(c.identity, text); err != nil {
		c.fail(describe(err))
	}
}

func (c *console) tail() {
	out, err := c.manager.Preview(c.identity, c.preview)
	if err != nil {
		c.fail(describe(err))

		return
	}

	if len(out) == 0 {
		c.println(infoStyle.Render("no output yet"))

		return
	}

	c.println(strings.TrimRight(string(out), "\n"))
}

func (c *console) pwd() {
	dir, err := c.manager.CurrentDirectory(c.identity)
	if err != nil {
		c.fail(describe(err))

		return
	}

	c.println(dir)
}

func (c *console) status() {
	info, err := c.manager.Status(c.identity)
	if err != nil {
		c.fail(describe(err))

		return
	}

	rows := [][2]string{
		{"target", info.Target.String()},
		{"identity", info.Identity},
		{"uptime", info.Uptime.Round(time.Second).String()},
		{"directory", info.Directory},
	}

	if info.Active != nil {
		rows = append(rows, [2]string{
			"running",
			fmt.Sprintf("%q for %s", info.Active.Command, info.Active.Running.Round(time.Second)),
		})
	} else {
		rows = append(rows, [2]string{"running", "nothing"})
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(labelStyle.Render(r[0]) + r[1] + "\n")
	}

	c.print(b.String())
}

type transferFunc func(ctx context.Context, identity, from, to string, opts ...tunnel.FileOption) error

func (c *console) transfer(ctx context.Context, args string, fn transferFunc) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		c.fail("usage: /upload <local> <remote> or /download <remote> <local>")

		return
	}

	if err := fn(ctx, c.identity, fields[0], fields[1]); err != nil {
		c.fail(describe(err))

		return
	}

	c.println(checkStyle.Render(fmt.Sprintf("copied %s to %s", fields[0], fields[1])))
}

func (c *console) disconnect(ctx context.Context) {
	summary, err := c.manager.Disconnect(ctx, c.identity)
	if err != nil {
		c.fail(describe(err))

		return
	}

	c.println(checkStyle.Render(summary))
}

// describe maps core errors to operator-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, tunnel.ErrNotConnected):
		return "not connected, use /connect first"
	case errors.Is(err, tunnel.ErrNoActiveExecution):
		return "nothing is running"
	case errors.Is(err, tunnel.ErrBusy):
		return "a command is already running, use /stop or /input"
	case errors.Is(err, tunnel.ErrInputQueueFull):
		return "too much pending input, wait for the command to read it"
	case errors.Is(err, tunnel.ErrNotSupported):
		return "file transfer is not supported by this transport"
	default:
		return err.Error()
	}
}

func (c *console) fail(msg string) {
	c.println(errorStyle.Render(msg))
}

func (c *console) println(s string) {
	c.print(s + "\n")
}

func (c *console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = io.WriteString(c.out, s)
}
