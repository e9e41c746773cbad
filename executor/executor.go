// Package executor runs the external toolchain with a wall-clock budget.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sarchlab/coarsebench/logutil"
	"go.uber.org/zap"
)

// Defaults of the Builder.
const (
	DefaultTimeout      = 3000 * time.Second
	DefaultPollInterval = time.Second
	DefaultWaitDelay    = 5 * time.Second
)

// TimeoutMessage is reported as the error text of a run that ran out of time.
const TimeoutMessage = "Time expired!"

// Command is one process to launch.
type Command struct {
	Path string
	Args []string

	// Env is the complete environment of the child in "key=value" form. A nil
	// Env inherits the harness environment.
	Env []string

	// Dir is the working directory; empty inherits the harness's.
	Dir string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Outcome is the observed result of a Command.
type Outcome struct {
	// ExitCode is the child's exit status, or -1 when it timed out, was
	// canceled, could not be started or died from a signal.
	ExitCode int
	TimedOut bool
	Canceled bool

	// Stdout holds the merged stdout and stderr of the child.
	Stdout string
	// Stderr holds the harness-side failure text (timeout, launch error).
	Stderr string

	PID      int
	Duration time.Duration
	PeakRSS  uint64
}

// Succeeded tells whether the run counts as a success.
func (o Outcome) Succeeded() bool {
	return o.ExitCode == 0 && !o.TimedOut && !o.Canceled
}

// Executor runs commands to completion or until their budget expires.
type Executor interface {
	// Execute runs cmd and blocks until it has exited. It never returns while
	// the child is still running.
	Execute(ctx context.Context, cmd Command) Outcome
}

// Builder creates Executors.
type Builder struct {
	timeout      time.Duration
	pollInterval time.Duration
	waitDelay    time.Duration
	output       io.Writer
	logger       *zap.Logger
}

// MakeBuilder creates a Builder with the default budget.
func MakeBuilder() Builder {
	return Builder{
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		waitDelay:    DefaultWaitDelay,
	}
}

// WithTimeout sets the wall-clock budget of one run.
func (b Builder) WithTimeout(d time.Duration) Builder {
	b.timeout = d
	return b
}

// WithPollInterval sets how often the child's memory use is sampled.
func (b Builder) WithPollInterval(d time.Duration) Builder {
	b.pollInterval = d
	return b
}

// WithWaitDelay bounds how long output pipes may stay open after the child
// exits, for example when a grandchild inherited them.
func (b Builder) WithWaitDelay(d time.Duration) Builder {
	b.waitDelay = d
	return b
}

// WithOutput streams the child's output to w while it runs.
func (b Builder) WithOutput(w io.Writer) Builder {
	b.output = w
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *zap.Logger) Builder {
	b.logger = l
	return b
}

// Build creates the Executor.
func (b Builder) Build() Executor {
	e := &processExecutor{
		timeout:      b.timeout,
		pollInterval: b.pollInterval,
		waitDelay:    b.waitDelay,
		output:       b.output,
		logger:       b.logger,
	}

	if e.logger == nil {
		e.logger = logutil.GetLogger()
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}

	return e
}

type processExecutor struct {
	timeout      time.Duration
	pollInterval time.Duration
	waitDelay    time.Duration
	output       io.Writer
	logger       *zap.Logger
}

func (e *processExecutor) Execute(ctx context.Context, c Command) Outcome {
	var buf bytes.Buffer
	var out io.Writer = &buf
	if e.output != nil {
		out = io.MultiWriter(&buf, e.output)
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = e.waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		e.logger.Error("failed to start command",
			zap.String("command", c.String()), zap.Error(err))
		return Outcome{ExitCode: -1, Stderr: err.Error()}
	}

	pid := cmd.Process.Pid
	e.logger.Debug("started command",
		zap.String("command", c.String()), zap.Int("pid", pid))

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	monitor := newRSSMonitor(pid)
	monitor.sample()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return Outcome{
				ExitCode: exitCode(cmd, err),
				Stdout:   buf.String(),
				PID:      pid,
				Duration: time.Since(start),
				PeakRSS:  monitor.peak,
			}

		case <-ticker.C:
			monitor.sample()

		case <-timer.C:
			e.logger.Warn("command timed out, terminating",
				zap.String("command", c.String()),
				zap.Int("pid", pid),
				zap.Duration("timeout", e.timeout))
			e.terminate(cmd, done)

			return Outcome{
				ExitCode: -1,
				TimedOut: true,
				Stderr:   TimeoutMessage,
				PID:      pid,
				Duration: time.Since(start),
				PeakRSS:  monitor.peak,
			}

		case <-ctx.Done():
			e.logger.Warn("command canceled, terminating",
				zap.String("command", c.String()),
				zap.Int("pid", pid),
				zap.Error(ctx.Err()))
			e.terminate(cmd, done)

			return Outcome{
				ExitCode: -1,
				Canceled: true,
				Stderr:   "Canceled: " + ctx.Err().Error(),
				PID:      pid,
				Duration: time.Since(start),
				PeakRSS:  monitor.peak,
			}
		}
	}
}

// terminate kills the child and everything it spawned, then waits for the
// child to be reaped.
func (e *processExecutor) terminate(cmd *exec.Cmd, done <-chan error) {
	if err := killDescendants(cmd.Process.Pid); err != nil {
		e.logger.Debug("could not walk the process tree",
			zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	}

	if err := cmd.Process.Kill(); err != nil {
		e.logger.Debug("kill failed", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	}

	<-done
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}

	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}

	return -1
}
