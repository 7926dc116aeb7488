package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/plan"
)

// DefaultMaxOutputBytes bounds each captured stream.
const DefaultMaxOutputBytes = 1 << 20

// waitDelay bounds how long Wait keeps copying output after the process
// exits or is killed, in case a detached grandchild still holds the pipes.
const waitDelay = 2 * time.Second

// Substituter resolves placeholder tokens in a command template.
type Substituter interface {
	Substitute(template string) (string, []string)
}

// Result is the outcome of one step execution.
type Result struct {
	Status          node.State
	Cause           node.Cause
	Command         string
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	ExitCode        *int
	StartedAt       time.Time
	Duration        time.Duration
	// Err describes the failure, if any, for logs.
	Err error
}

// Options configures an Executor.
type Options struct {
	// MaxOutputBytes bounds stdout and stderr independently.
	MaxOutputBytes int
	// Shell is the argv prefix the command is appended to. It defaults to
	// "sh -c", or "cmd /C" on Windows.
	Shell []string
}

// Executor spawns step processes.
type Executor struct {
	maxOutput int
	shell     []string
}

// New creates an Executor.
func New(opts Options) *Executor {
	e := &Executor{maxOutput: opts.MaxOutputBytes, shell: opts.Shell}
	if e.maxOutput <= 0 {
		e.maxOutput = DefaultMaxOutputBytes
	}
	if len(e.shell) == 0 {
		e.shell = shellArgv
	}
	return e
}

// Execute resolves the step's command from values and runs it. A timeout of
// zero disables the per-step deadline. Cancellation of ctx kills the process
// and yields a Cancelled result.
func (e *Executor) Execute(ctx context.Context, step plan.Step, values Substituter, timeout time.Duration) Result {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	command, missing := values.Substitute(step.CommandTemplate)
	if len(missing) > 0 {
		err := fmt.Errorf("unresolved placeholders at dispatch: %s", strings.Join(missing, ", "))
		logger.Error("Step dispatched with unresolved placeholders.", "missing", missing)
		return Result{Status: node.Failed, Cause: node.CauseInternalOrderingError, Command: command, StartedAt: started, Err: err}
	}
	command = plan.SanitizeCommand(command)

	stdout := newBoundedBuffer(e.maxOutput)
	stderr := newBoundedBuffer(e.maxOutput)
	argv := append(append([]string{}, e.shell...), command)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	result := func(status node.State, cause node.Cause, err error) Result {
		return Result{
			Status:          status,
			Cause:           cause,
			Command:         command,
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			StdoutTruncated: stdout.Truncated(),
			StderrTruncated: stderr.Truncated(),
			StartedAt:       started,
			Duration:        time.Since(started),
			Err:             err,
		}
	}

	logger.Info("▶️ Running step.", "command", command, "timeout", timeout)
	if err := cmd.Start(); err != nil {
		logger.Error("Failed to spawn step process.", "error", err)
		return result(node.Failed, node.CauseProcessSpawnFailure, fmt.Errorf("failed to spawn process: %w", err))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-done:
		return e.finish(ctx, cmd, err, result)
	case <-deadline:
		logger.Warn("Step exceeded its timeout, killing process group.", "timeout", timeout)
		_ = killProcessGroup(cmd)
		<-done
		return withExit(result(node.TimedOut, node.CauseTimedOut, fmt.Errorf("timed out after %s", timeout)), cmd)
	case <-ctx.Done():
		logger.Warn("Plan cancelled, killing step process group.")
		_ = killProcessGroup(cmd)
		<-done
		return withExit(result(node.Cancelled, node.CausePlanCancelled, ctx.Err()), cmd)
	}
}

func (e *Executor) finish(ctx context.Context, cmd *exec.Cmd, waitErr error, result func(node.State, node.Cause, error) Result) Result {
	logger := ctxlog.FromContext(ctx)
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		r := withExit(result(node.Success, node.CauseNone, nil), cmd)
		logger.Info("✅ Step finished.", "exit_code", 0, "duration", r.Duration)
		return r
	case errors.As(waitErr, &exitErr):
		code := exitErr.ExitCode()
		cause := node.CauseNonZeroExit
		if code == exitCommandNotFound {
			cause = node.CauseProcessSpawnFailure
		}
		r := withExit(result(node.Failed, cause, fmt.Errorf("process exited with code %d", code)), cmd)
		logger.Warn("❌ Step failed.", "exit_code", code, "cause", cause, "duration", r.Duration)
		return r
	default:
		logger.Error("Waiting on step process failed.", "error", waitErr)
		return withExit(result(node.Failed, node.CauseProcessSpawnFailure, waitErr), cmd)
	}
}

// withExit attaches the exit code when the process reported one.
func withExit(r Result, cmd *exec.Cmd) Result {
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			r.ExitCode = &code
		}
	}
	return r
}
