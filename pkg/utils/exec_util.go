package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var ErrTimeout = errors.New("command timed out")

// ShellOptions bounds a shell execution.
type ShellOptions struct {
	Timeout   time.Duration
	MaxOutput int
	// RunAs drops the child to this local user when set (Unix only).
	RunAs string
}

// ShellResult is the captured outcome of RunShell. Err is nil only when the
// command ran and exited with status zero.
type ShellResult struct {
	Stdout    string
	Stderr    string
	Truncated bool
	ExitCode  int
	Err       error
}

const maxStderr = 4 * 1024

// RunShell runs command through the platform shell with a timeout (default: 10s)
// and captures at most opts.MaxOutput bytes of stdout.
func RunShell(ctx context.Context, command string, opts ShellOptions) ShellResult {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: opts.MaxOutput}
	stderr := &cappedBuffer{limit: maxStderr}
	name, args := shellCommand(command)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second
	if err := configureCommand(cmd, opts.RunAs); err != nil {
		return ShellResult{ExitCode: -1, Err: err}
	}

	err := cmd.Run()
	res := ShellResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated,
	}
	if ctx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		res.Err = fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout)
		return res
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Err = fmt.Errorf("exit status %d", res.ExitCode)
			return res
		}
		res.ExitCode = -1
		res.Err = fmt.Errorf("failed to run command: %w", err)
	}
	return res
}

// cappedBuffer keeps the first limit bytes and silently discards the rest so
// the child never blocks on a full pipe. A non-positive limit keeps everything.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
