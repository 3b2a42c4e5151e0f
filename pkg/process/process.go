// Package process runs the downstream MCP server as a child process.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Process is a started child with piped stdin and stdout. Its stderr goes
// straight to the configured writer.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	log    *slog.Logger
}

// Option configures Start.
type Option func(*exec.Cmd)

// WithStderr redirects the child's stderr. The default is os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(c *exec.Cmd) { c.Stderr = w }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(kv ...string) Option {
	return func(c *exec.Cmd) { c.Env = append(c.Env, kv...) }
}

// Start launches name with args. The child is killed when ctx is cancelled.
func Start(ctx context.Context, log *slog.Logger, name string, args []string, opts ...Option) (*Process, error) {
	if name == "" {
		return nil, errors.New("process: no server command given")
	}
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr
	for _, opt := range opts {
		opt(cmd)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", name, err)
	}

	log = log.With("component", "process", "pid", cmd.Process.Pid)
	log.Info("server started", "cmd", name, "args", args)
	return &Process{cmd: cmd, stdin: stdin, stdout: stdout, log: log}, nil
}

// Stdin is the child's input. Closing it signals end of input to the server.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout is the child's output. It must be drained before Wait is called.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Wait blocks until the child exits and returns its exit code. A non-zero
// exit is reported through the code, not the error.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.log.Info("server exited", "code", 0)
		return 0, nil
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1 // killed by a signal
		}
		p.log.Info("server exited", "code", code, "state", exitErr.String())
		return code, nil
	default:
		return 1, fmt.Errorf("process: wait: %w", err)
	}
}
