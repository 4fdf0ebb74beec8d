package git

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Result is the captured outcome of one git invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExitError is returned when git ran but exited non-zero.
type ExitError struct {
	Result Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("git %s: exit status %d", strings.Join(e.Result.Args, " "), e.Result.ExitCode)
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg += "\nstderr:\n" + stderr
	}
	return msg
}

// Runner issues git commands. Implementations return *ExitError (possibly
// wrapped) for non-zero exits.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// Compile-time interface check.
var _ Runner = (*CLI)(nil)

// CLI runs the git binary found on PATH.
type CLI struct {
	dir  string
	echo io.Writer
	// Passthrough mirrors git's own output to these writers as well.
	stdout io.Writer
	stderr io.Writer
}

// CLIOption configures a CLI.
type CLIOption func(*CLI)

// WithDir sets the working tree git runs in.
func WithDir(dir string) CLIOption {
	return func(c *CLI) { c.dir = dir }
}

// WithEcho narrates every command as "Running: git ..." to w.
func WithEcho(w io.Writer) CLIOption {
	return func(c *CLI) { c.echo = w }
}

// WithOutput mirrors git's stdout and stderr to the given writers.
func WithOutput(stdout, stderr io.Writer) CLIOption {
	return func(c *CLI) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// NewCLI constructs a git CLI runner.
func NewCLI(opts ...CLIOption) *CLI {
	c := &CLI{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes git with args and captures its output.
func (c *CLI) Run(ctx context.Context, args ...string) (Result, error) {
	if c.echo != nil {
		fmt.Fprintf(c.echo, "Running: git %s\n", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.stdout)
	}
	if c.stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.stderr)
	}

	err := cmd.Run()
	res := Result{
		Args:   append([]string(nil), args...),
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, errors.WithStack(&ExitError{Result: res})
		}
		res.ExitCode = -1
		return res, errors.Wrapf(err, "git %s", strings.Join(args, " "))
	}
	return res, nil
}
