// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/netutil"
)

// ErrRenderTimeout is returned by Compile when the compiler does not
// finish writing its output within the timeout.
var ErrRenderTimeout = errors.New("render timed out")

// ErrOutputTooLarge is returned by Compile when the compiler writes
// more than MaxOutput bytes to stdout.
var ErrOutputTooLarge = errors.New("compiler output too large")

// CompilerConfig configures a Compiler.
type CompilerConfig struct {
	// Binary is the compiler executable, resolved via PATH.
	// Default: "typst".
	Binary string
	// Args are passed to Binary. Default: compile - - --format png.
	Args []string
	// Timeout bounds the wait for stdout to close. Default: 25 seconds.
	Timeout time.Duration
	// MaxOutput bounds each of stdout and stderr. Default: 64 MiB.
	MaxOutput int64

	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultArgs reads source from stdin and writes a PNG to stdout.
var DefaultArgs = []string{"compile", "-", "-", "--format", "png"}

// Compiler runs the external typst compiler.
type Compiler struct {
	binary    string
	args      []string
	timeout   time.Duration
	maxOutput int64
	clock     clock.Clock
	logger    *slog.Logger
}

// NewCompiler applies defaults to config.
func NewCompiler(config CompilerConfig) *Compiler {
	compiler := &Compiler{
		binary:    config.Binary,
		args:      config.Args,
		timeout:   config.Timeout,
		maxOutput: config.MaxOutput,
		clock:     config.Clock,
		logger:    config.Logger,
	}
	if compiler.binary == "" {
		compiler.binary = "typst"
	}
	if compiler.args == nil {
		compiler.args = DefaultArgs
	}
	if compiler.timeout == 0 {
		compiler.timeout = 25 * time.Second
	}
	if compiler.maxOutput == 0 {
		compiler.maxOutput = 64 << 20
	}
	if compiler.clock == nil {
		compiler.clock = clock.Real()
	}
	if compiler.logger == nil {
		compiler.logger = slog.Default()
	}
	return compiler
}

// Result is the outcome of one compiler run that finished in time.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Success reports whether the compiler exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Output returns stdout followed by stderr.
func (r *Result) Output() []byte {
	combined := make([]byte, 0, len(r.Stdout)+len(r.Stderr))
	combined = append(combined, r.Stdout...)
	return append(combined, r.Stderr...)
}

type streamResult struct {
	data []byte
	err  error
}

// Compile runs the compiler on source. A non-zero exit is reported in
// the Result, not as an error. Errors are returned for spawn and pipe
// failures, ErrRenderTimeout, ErrOutputTooLarge, and ctx cancellation;
// in the last two cases the process group is killed as on timeout.
func (c *Compiler) Compile(ctx context.Context, source string) (*Result, error) {
	start := c.clock.Now()

	command := exec.Command(c.binary, c.args...)
	// Own process group: the kill must reach anything the compiler
	// spawned, or orphans would keep the pipes open.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := command.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.binary, err)
	}

	go func() {
		if _, err := io.WriteString(stdin, source); err != nil {
			// The compiler exited without reading its input; its exit
			// status and stderr carry the real failure.
			c.logger.Debug("writing compiler stdin", "error", err)
		}
		stdin.Close()
	}()

	stdoutDone := make(chan streamResult, 1)
	stderrDone := make(chan streamResult, 1)
	go func() { stdoutDone <- c.drain(stdout) }()
	go func() { stderrDone <- c.drain(stderr) }()

	var stdoutResult streamResult
	select {
	case stdoutResult = <-stdoutDone:
	case <-c.clock.After(c.timeout):
		c.abandon(command, stdoutDone, stderrDone)
		return nil, ErrRenderTimeout
	case <-ctx.Done():
		c.abandon(command, stdoutDone, stderrDone)
		return nil, ctx.Err()
	}

	if errors.Is(stdoutResult.err, netutil.ErrTooLarge) {
		c.abandon(command, closedStream(stdoutResult), stderrDone)
		return nil, fmt.Errorf("%w: more than %d bytes", ErrOutputTooLarge, c.maxOutput)
	}

	stderrResult := <-stderrDone
	waitErr := command.Wait()

	result := &Result{
		Stdout:   stdoutResult.data,
		Stderr:   stderrResult.data,
		Duration: c.clock.Now().Sub(start),
	}
	if waitErr != nil {
		var exitError *exec.ExitError
		if !errors.As(waitErr, &exitError) {
			return nil, fmt.Errorf("waiting for %s: %w", c.binary, waitErr)
		}
		// -1 when the compiler was killed by a signal.
		result.ExitCode = exitError.ExitCode()
	}
	if stdoutResult.err != nil {
		return nil, fmt.Errorf("reading compiler stdout: %w", stdoutResult.err)
	}
	return result, nil
}

// drain reads a stream up to maxOutput bytes and discards the rest so
// the child never blocks on a full pipe.
func (c *Compiler) drain(stream io.Reader) streamResult {
	data, err := netutil.ReadAtMost(stream, c.maxOutput)
	if errors.Is(err, netutil.ErrTooLarge) {
		io.Copy(io.Discard, stream)
	}
	return streamResult{data: data, err: err}
}

// abandon kills the process group and reaps the child in the
// background once both streams have been drained.
func (c *Compiler) abandon(command *exec.Cmd, stdoutDone, stderrDone <-chan streamResult) {
	if err := unix.Kill(-command.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		c.logger.Warn("killing compiler process group", "pid", command.Process.Pid, "error", err)
	}
	go func() {
		<-stdoutDone
		<-stderrDone
		command.Wait()
	}()
}

func closedStream(result streamResult) <-chan streamResult {
	channel := make(chan streamResult, 1)
	channel <- result
	return channel
}
