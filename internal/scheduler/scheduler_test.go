package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/dag"
	"github.com/vk/planexec/internal/executor"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/placeholder"
	"github.com/vk/planexec/internal/plan"
	"github.com/vk/planexec/internal/progress"
	"github.com/vk/planexec/internal/session"
	"github.com/vk/planexec/internal/toolresolver"
)

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(ctx context.Context, step plan.Step, values executor.Substituter, timeout time.Duration) executor.Result

func (f runnerFunc) Execute(ctx context.Context, step plan.Step, values executor.Substituter, timeout time.Duration) executor.Result {
	return f(ctx, step, values, timeout)
}

// fakeTools reports a fixed outcome per tool and counts calls.
type fakeTools struct {
	mu       sync.Mutex
	outcomes map[string]toolresolver.Outcome
	calls    map[string]int
}

func (f *fakeTools) Ensure(_ context.Context, tool string) (toolresolver.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[tool]++
	outcome, ok := f.outcomes[tool]
	if !ok || outcome == toolresolver.Unavailable {
		return toolresolver.Unavailable, errors.New(tool + " is not installed")
	}
	return outcome, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Publish(ev progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) states(index int) []node.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []node.State
	for _, ev := range l.events {
		if ev.Index == index {
			out = append(out, ev.To)
		}
	}
	return out
}

// succeed returns a successful result with the given stdout.
func succeed(stdout string) executor.Result {
	return executor.Result{Status: node.Success, Stdout: stdout, StartedAt: time.Now()}
}

type harness struct {
	sched    *Scheduler
	registry *placeholder.Registry
	recorder *session.Recorder
	events   *eventLog
}

func newHarness(t *testing.T, steps []plan.Step, runner Runner, tools ToolResolver, workers int) *harness {
	t.Helper()
	p := plan.Plan{Steps: steps}
	require.NoError(t, p.Validate())
	g, err := dag.Build(context.Background(), p, nil)
	require.NoError(t, err)

	if tools == nil {
		tools = &fakeTools{}
	}
	h := &harness{
		registry: placeholder.NewRegistry(),
		recorder: session.NewRecorder("test-session", p),
		events:   &eventLog{},
	}
	h.sched, err = New(Config{
		Plan:           p,
		Graph:          g,
		Registry:       h.registry,
		Tools:          tools,
		Runner:         runner,
		Recorder:       h.recorder,
		Events:         h.events,
		Workers:        workers,
		DefaultTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) result(t *testing.T, index int) session.StepResult {
	t.Helper()
	for _, r := range h.recorder.Results() {
		if r.Index == index {
			return r
		}
	}
	t.Fatalf("no result recorded for step %d", index)
	return session.StepResult{}
}

func shell(index int, command string) plan.Step {
	return plan.Step{Index: index, ActionKind: plan.ShellCommand, CommandTemplate: command}
}

func discovery(index int, command string, produces ...string) plan.Step {
	return plan.Step{Index: index, ActionKind: plan.Discovery, CommandTemplate: command, Produces: produces}
}

func TestRun_IndependentStepsOverlap(t *testing.T) {
	t.Parallel()

	started := make(chan int, 2)
	release := make(chan struct{})
	var once sync.Once
	var concurrent atomic.Bool

	runner := runnerFunc(func(ctx context.Context, st plan.Step, _ executor.Substituter, _ time.Duration) executor.Result {
		started <- st.Index
		if len(started) == 2 {
			concurrent.Store(true)
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		return succeed("")
	})

	h := newHarness(t, []plan.Step{shell(0, "sleep 1"), shell(1, "sleep 1")}, runner, nil, 0)
	outcome := h.sched.Run(context.Background())

	assert.Equal(t, session.Completed, outcome)
	assert.True(t, concurrent.Load(), "both steps should be running at the same time")
	assert.Equal(t, node.Success, h.result(t, 0).Status)
	assert.Equal(t, node.Success, h.result(t, 1).Status)
}

func TestRun_WorkerLimit(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	runner := runnerFunc(func(context.Context, plan.Step, executor.Substituter, time.Duration) executor.Result {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return succeed("")
	})

	steps := []plan.Step{shell(0, "a"), shell(1, "b"), shell(2, "c"), shell(3, "d")}
	h := newHarness(t, steps, runner, nil, 2)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, h.recorder.Results(), 4)
}

func TestRun_GatewayScenario(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []int
	var scanned string
	runner := runnerFunc(func(_ context.Context, st plan.Step, values executor.Substituter, _ time.Duration) executor.Result {
		mu.Lock()
		order = append(order, st.Index)
		mu.Unlock()
		if st.Index == 0 {
			return succeed("default via 192.168.1.1 dev eth0 proto dhcp\n")
		}
		cmd, missing := values.Substitute(st.CommandTemplate)
		assert.Empty(t, missing)
		mu.Lock()
		scanned = cmd
		mu.Unlock()
		return succeed("")
	})

	steps := []plan.Step{
		discovery(0, "ip route", "gateway"),
		shell(1, "scan {gateway}"),
	}
	h := newHarness(t, steps, runner, nil, 0)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))

	assert.Equal(t, []int{0, 1}, order)
	assert.Equal(t, "scan 192.168.1.1", scanned)
	value, ok := h.registry.Resolve("gateway")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.1", value)
	assert.Equal(t, []node.State{node.WaitingOnPlaceholders, node.Running, node.Success}, h.events.states(1))
}

func TestRun_FailedProducerSkipsConsumersTransitively(t *testing.T) {
	t.Parallel()

	var calls sync.Map
	runner := runnerFunc(func(_ context.Context, st plan.Step, _ executor.Substituter, _ time.Duration) executor.Result {
		calls.Store(st.Index, true)
		code := 1
		return executor.Result{Status: node.Failed, Cause: node.CauseNonZeroExit, ExitCode: &code}
	})

	steps := []plan.Step{
		discovery(0, "ip route", "gateway"),
		discovery(1, "probe {gateway}", "target_ip"),
		shell(2, "scan {target_ip}"),
	}
	h := newHarness(t, steps, runner, nil, 0)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))

	assert.Equal(t, node.Failed, h.result(t, 0).Status)
	assert.Equal(t, node.CauseNonZeroExit, h.result(t, 0).Cause)
	for _, index := range []int{1, 2} {
		res := h.result(t, index)
		assert.Equal(t, node.Skipped, res.Status, "step %d", index)
		assert.Equal(t, node.CauseUnresolvedDependency, res.Cause, "step %d", index)
		_, ran := calls.Load(index)
		assert.False(t, ran, "step %d must not run", index)
	}
}

func TestRun_ConflictingProducers(t *testing.T) {
	t.Parallel()

	var consumed atomic.Value
	runner := runnerFunc(func(_ context.Context, st plan.Step, values executor.Substituter, _ time.Duration) executor.Result {
		switch st.Index {
		case 0:
			return succeed("gateway=10.0.0.1\n")
		case 1:
			return succeed("gateway=10.0.0.2\n")
		}
		cmd, _ := values.Substitute(st.CommandTemplate)
		consumed.Store(cmd)
		return succeed("")
	})

	steps := []plan.Step{
		discovery(0, "probe a", "gateway"),
		discovery(1, "probe b", "gateway"),
		shell(2, "ping {gateway}"),
	}
	h := newHarness(t, steps, runner, nil, 0)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))

	r0, r1 := h.result(t, 0), h.result(t, 1)
	statuses := []node.State{r0.Status, r1.Status}
	assert.ElementsMatch(t, []node.State{node.Success, node.Failed}, statuses)
	loser := r0
	if r0.Status == node.Success {
		loser = r1
	}
	assert.Equal(t, node.CausePlaceholderConflict, loser.Cause)

	winner, ok := h.registry.Resolve("gateway")
	require.True(t, ok)
	assert.Equal(t, "ping "+winner, consumed.Load())
	assert.Equal(t, node.Success, h.result(t, 2).Status)
}

func TestRun_MissingOutput(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(context.Context, plan.Step, executor.Substituter, time.Duration) executor.Result {
		return succeed("")
	})
	steps := []plan.Step{discovery(0, "ip route", "gateway"), shell(1, "scan {gateway}")}
	h := newHarness(t, steps, runner, nil, 0)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))

	assert.Equal(t, node.Failed, h.result(t, 0).Status)
	assert.Equal(t, node.CauseMissingOutput, h.result(t, 0).Cause)
	assert.Equal(t, node.CauseUnresolvedDependency, h.result(t, 1).Cause)
}

func TestRun_ToolUnavailableNeverExecutes(t *testing.T) {
	t.Parallel()

	var executed atomic.Bool
	runner := runnerFunc(func(context.Context, plan.Step, executor.Substituter, time.Duration) executor.Result {
		executed.Store(true)
		return succeed("")
	})
	tools := &fakeTools{outcomes: map[string]toolresolver.Outcome{}}
	steps := []plan.Step{
		{Index: 0, ActionKind: plan.Discovery, CommandTemplate: "nmap -sn 10.0.0.0/24", DeclaredTool: "nmap", Produces: []string{"target_ip"}},
		shell(1, "ping {target_ip}"),
	}
	h := newHarness(t, steps, runner, tools, 0)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))

	assert.False(t, executed.Load())
	res := h.result(t, 0)
	assert.Equal(t, node.Failed, res.Status)
	assert.Equal(t, node.CauseToolUnavailable, res.Cause)
	assert.Contains(t, res.Error, "nmap is not installed")
	assert.Equal(t, []node.State{node.WaitingOnTool, node.Failed}, h.events.states(0))
	assert.Equal(t, node.CauseUnresolvedDependency, h.result(t, 1).Cause)
}

func TestRun_ToolReadyRuns(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(context.Context, plan.Step, executor.Substituter, time.Duration) executor.Result {
		return succeed("")
	})
	tools := &fakeTools{outcomes: map[string]toolresolver.Outcome{"nmap": toolresolver.Installed}}
	steps := []plan.Step{
		{Index: 0, ActionKind: plan.ToolInvocation, CommandTemplate: "nmap -sV 10.0.0.1"},
		{Index: 1, ActionKind: plan.ToolInvocation, CommandTemplate: "/usr/bin/nmap -O 10.0.0.1"},
	}
	h := newHarness(t, steps, runner, tools, 0)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))

	assert.Equal(t, node.Success, h.result(t, 0).Status)
	assert.Equal(t, node.Success, h.result(t, 1).Status)
	assert.Equal(t, 2, tools.calls["nmap"])
	assert.Equal(t, []node.State{node.WaitingOnTool, node.WaitingOnPlaceholders, node.Running, node.Success}, h.events.states(0))
}

func TestRun_Cancellation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, st plan.Step, _ executor.Substituter, _ time.Duration) executor.Result {
		close(started)
		<-ctx.Done()
		return executor.Result{Status: node.Cancelled, Cause: node.CausePlanCancelled, Err: ctx.Err()}
	})
	steps := []plan.Step{discovery(0, "sleep 60", "gateway"), shell(1, "scan {gateway}")}
	h := newHarness(t, steps, runner, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	assert.Equal(t, session.Aborted, h.sched.Run(ctx))
	assert.Equal(t, node.Cancelled, h.result(t, 0).Status)
	res := h.result(t, 1)
	assert.Equal(t, node.Skipped, res.Status)
	assert.Equal(t, node.CausePlanCancelled, res.Cause)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	var executed atomic.Bool
	runner := runnerFunc(func(context.Context, plan.Step, executor.Substituter, time.Duration) executor.Result {
		executed.Store(true)
		return succeed("")
	})
	h := newHarness(t, []plan.Step{shell(0, "a"), shell(1, "b")}, runner, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, session.Aborted, h.sched.Run(ctx))
	assert.False(t, executed.Load())
	for _, index := range []int{0, 1} {
		assert.Equal(t, node.Skipped, h.result(t, index).Status)
		assert.Equal(t, node.CausePlanCancelled, h.result(t, index).Cause)
	}
}

func TestRun_Timeouts(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	timeouts := map[int]time.Duration{}
	runner := runnerFunc(func(_ context.Context, st plan.Step, _ executor.Substituter, timeout time.Duration) executor.Result {
		mu.Lock()
		timeouts[st.Index] = timeout
		mu.Unlock()
		return succeed("")
	})
	withOwn := shell(1, "b")
	withOwn.Timeout = time.Second
	h := newHarness(t, []plan.Step{shell(0, "a"), withOwn}, runner, nil, 0)
	h.sched.Run(context.Background())

	assert.Equal(t, 5*time.Second, timeouts[0])
	assert.Equal(t, time.Second, timeouts[1])
}

func TestRun_EveryStepRecordedOnce(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(_ context.Context, st plan.Step, _ executor.Substituter, _ time.Duration) executor.Result {
		if st.Index%2 == 0 {
			return executor.Result{Status: node.TimedOut, Cause: node.CauseTimedOut}
		}
		return succeed("")
	})
	var steps []plan.Step
	for i := 0; i < 12; i++ {
		steps = append(steps, shell(i, "true"))
	}
	h := newHarness(t, steps, runner, nil, 3)
	require.Equal(t, session.Completed, h.sched.Run(context.Background()))

	results := h.recorder.Results()
	require.Len(t, results, 12)
	for i := 0; i < 12; i++ {
		state, ok := h.sched.State(i)
		require.True(t, ok)
		assert.True(t, state.Terminal())
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorIs(t, err, errMissingCollaborator)
}

func TestRun_RunnerLogsCarryStepAndSession(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{mu: &mu, w: &buf}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	runner := runnerFunc(func(ctx context.Context, st plan.Step, _ executor.Substituter, _ time.Duration) executor.Result {
		ctxlog.FromContext(ctx).Info("runner called")
		return succeed("")
	})
	h := newHarness(t, []plan.Step{
		{Index: 7, ActionKind: plan.ShellCommand, CommandTemplate: "id"},
	}, runner, nil, 1)

	h.sched.Run(ctxlog.WithLogger(context.Background(), logger))

	mu.Lock()
	defer mu.Unlock()
	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "runner called") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Contains(t, line, "session_id=test-session")
	assert.Contains(t, line, "step=7")
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
