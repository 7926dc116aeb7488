package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/planexec/internal/executor"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/plan"
)

// SleeperRunner is a scheduler runner for concurrency tests. Every step
// sleeps for a fixed duration, records its execution window and succeeds
// with the stdout configured for its index.
type SleeperRunner struct {
	Stdout map[int]string
	// Fail lists steps that exit non-zero.
	Fail map[int]bool

	mu             sync.Mutex
	executionTimes map[int]ExecutionRecord
	commands       map[int]string
	sleepDuration  time.Duration
}

// NewSleeperRunner creates a runner whose steps each take sleep.
func NewSleeperRunner(sleep time.Duration) *SleeperRunner {
	return &SleeperRunner{
		Stdout:         map[int]string{},
		Fail:           map[int]bool{},
		executionTimes: map[int]ExecutionRecord{},
		commands:       map[int]string{},
		sleepDuration:  sleep,
	}
}

// Execute implements the scheduler's Runner interface.
func (m *SleeperRunner) Execute(ctx context.Context, st plan.Step, values executor.Substituter, _ time.Duration) executor.Result {
	cmd, _ := values.Substitute(st.CommandTemplate)

	startTime := time.Now()
	select {
	case <-time.After(m.sleepDuration):
	case <-ctx.Done():
		return executor.Result{Status: node.Cancelled, Cause: node.CausePlanCancelled, Command: cmd, StartedAt: startTime, Err: ctx.Err()}
	}
	endTime := time.Now()

	m.mu.Lock()
	m.executionTimes[st.Index] = ExecutionRecord{Start: startTime, End: endTime}
	m.commands[st.Index] = cmd
	stdout, fail := m.Stdout[st.Index], m.Fail[st.Index]
	m.mu.Unlock()

	res := executor.Result{Status: node.Success, Command: cmd, Stdout: stdout, StartedAt: startTime, Duration: endTime.Sub(startTime)}
	if fail {
		code := 1
		res.Status, res.Cause, res.ExitCode = node.Failed, node.CauseNonZeroExit, &code
	}
	return res
}

// Record returns the execution window of a step.
func (m *SleeperRunner) Record(index int) (ExecutionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.executionTimes[index]
	return r, ok
}

// Command returns the resolved command a step ran with.
func (m *SleeperRunner) Command(index int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands[index]
}
