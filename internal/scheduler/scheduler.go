package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/dag"
	"github.com/vk/planexec/internal/executor"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/placeholder"
	"github.com/vk/planexec/internal/plan"
	"github.com/vk/planexec/internal/progress"
	"github.com/vk/planexec/internal/session"
	"github.com/vk/planexec/internal/toolresolver"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the number of steps allowed to run at once when Config
// does not say otherwise.
const DefaultWorkers = 10

// ToolResolver makes a step's tool available before it runs.
type ToolResolver interface {
	Ensure(ctx context.Context, tool string) (toolresolver.Outcome, error)
}

// Runner executes one step.
type Runner interface {
	Execute(ctx context.Context, step plan.Step, values executor.Substituter, timeout time.Duration) executor.Result
}

// EventPublisher receives every state transition.
type EventPublisher interface {
	Publish(ev progress.Event)
}

// Config holds the collaborators of one run.
type Config struct {
	Plan     plan.Plan
	Graph    *dag.Graph
	Registry *placeholder.Registry
	Tools    ToolResolver
	Runner   Runner
	Recorder *session.Recorder
	// Events is optional.
	Events EventPublisher
	// Workers bounds concurrently running steps. Zero means DefaultWorkers.
	Workers int
	// DefaultTimeout applies to steps without their own timeout. Zero means
	// no deadline.
	DefaultTimeout time.Duration
}

// Scheduler runs the steps of a single plan.
type Scheduler struct {
	cfg   Config
	nodes map[int]*node.Node
	slots *semaphore.Weighted
	now   func() time.Time
}

var errMissingCollaborator = errors.New("scheduler: missing collaborator")

// New validates cfg and prepares a node per step.
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Graph == nil:
		return nil, fmt.Errorf("%w: graph", errMissingCollaborator)
	case cfg.Registry == nil:
		return nil, fmt.Errorf("%w: registry", errMissingCollaborator)
	case cfg.Tools == nil:
		return nil, fmt.Errorf("%w: tool resolver", errMissingCollaborator)
	case cfg.Runner == nil:
		return nil, fmt.Errorf("%w: runner", errMissingCollaborator)
	case cfg.Recorder == nil:
		return nil, fmt.Errorf("%w: recorder", errMissingCollaborator)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	nodes := make(map[int]*node.Node, len(cfg.Plan.Steps))
	for _, st := range cfg.Plan.Steps {
		nodes[st.Index] = node.New(st)
	}
	return &Scheduler{
		cfg:   cfg,
		nodes: nodes,
		slots: semaphore.NewWeighted(int64(cfg.Workers)),
		now:   time.Now,
	}, nil
}

// State returns the current state of the step with the given index.
func (s *Scheduler) State(index int) (node.State, bool) {
	n, ok := s.nodes[index]
	if !ok {
		return 0, false
	}
	return n.State(), true
}

// Run executes every step and blocks until all of them are terminal. Step
// failures never stop the run; only cancellation of ctx does, in which case
// waiting steps are skipped, running ones are killed and the outcome is
// Aborted.
func (s *Scheduler) Run(ctx context.Context) session.Outcome {
	ctx = ctxlog.WithAttrs(ctx, "session_id", s.cfg.Recorder.ID())
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Starting plan execution...", "steps", len(s.nodes), "workers", s.cfg.Workers)

	expected := make(map[string]bool)
	for _, st := range s.cfg.Plan.Steps {
		for _, name := range st.Produces {
			if !expected[name] {
				expected[name] = true
				s.cfg.Registry.Expect(name, len(s.cfg.Graph.Producers(name)))
			}
		}
	}

	order, err := s.cfg.Graph.TopologicalOrder()
	if err != nil {
		// The graph was validated at build time, so fall back to index order.
		logger.Warn("Could not order steps topologically.", "error", err)
		order = s.cfg.Plan.Indices()
	}

	// Not errgroup.WithContext: one failing step must not cancel the others.
	var g errgroup.Group
	for _, index := range order {
		n := s.nodes[index]
		g.Go(func() error {
			s.coordinate(ctx, n)
			return nil
		})
	}
	_ = g.Wait()

	outcome := session.Completed
	if ctx.Err() != nil {
		outcome = session.Aborted
	}
	logger.Info("🏁 Plan execution finished.", "outcome", outcome)
	return outcome
}

// coordinate walks one step through its state machine.
func (s *Scheduler) coordinate(ctx context.Context, n *node.Node) {
	st := n.Step
	ctx = ctxlog.WithAttrs(ctx, "step", st.Index)
	logger := ctxlog.FromContext(ctx)

	// Whatever happens, names this step did not publish can no longer come
	// from it. Abandon is a no-op for names already published.
	defer func() {
		for _, name := range st.Produces {
			s.cfg.Registry.Abandon(name)
		}
	}()

	if ctx.Err() != nil {
		s.finish(ctx, n, session.StepResult{Status: node.Skipped, Cause: node.CausePlanCancelled, Error: ctx.Err().Error()})
		return
	}

	if tool := st.Tool(); tool != "" {
		s.transition(ctx, n, node.WaitingOnTool, node.CauseNone)
		outcome, err := s.cfg.Tools.Ensure(ctx, tool)
		if ctx.Err() != nil {
			s.finish(ctx, n, session.StepResult{Status: node.Skipped, Cause: node.CausePlanCancelled, Error: ctx.Err().Error()})
			return
		}
		if outcome == toolresolver.Unavailable {
			msg := fmt.Sprintf("tool %s is unavailable", tool)
			if err != nil {
				msg = err.Error()
			}
			s.finish(ctx, n, session.StepResult{Status: node.Failed, Cause: node.CauseToolUnavailable, Error: msg})
			return
		}
		logger.Debug("Tool is available.", "tool", tool, "outcome", outcome)
	}

	s.transition(ctx, n, node.WaitingOnPlaceholders, node.CauseNone)
	for _, name := range st.Consumes {
		if _, err := s.cfg.Registry.Wait(ctx, name); err != nil {
			if ctx.Err() != nil {
				s.finish(ctx, n, session.StepResult{Status: node.Skipped, Cause: node.CausePlanCancelled, Error: ctx.Err().Error()})
				return
			}
			s.finish(ctx, n, session.StepResult{Status: node.Skipped, Cause: node.CauseUnresolvedDependency, Error: err.Error()})
			return
		}
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		s.finish(ctx, n, session.StepResult{Status: node.Skipped, Cause: node.CausePlanCancelled, Error: err.Error()})
		return
	}
	defer s.slots.Release(1)

	s.transition(ctx, n, node.Running, node.CauseNone)
	timeout := st.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	res := s.cfg.Runner.Execute(ctx, st, s.cfg.Registry, timeout)
	result := fromExecutor(res)

	if res.Status == node.Success && st.IsDiscovery() {
		if cause, err := s.publish(st, res.Stdout); err != nil {
			result.Status, result.Cause, result.Error = node.Failed, cause, err.Error()
		}
	}
	s.finish(ctx, n, result)
}

// publish extracts and publishes the values a discovery step produces.
func (s *Scheduler) publish(st plan.Step, stdout string) (node.Cause, error) {
	values, err := placeholder.ExtractAll(st.Produces, stdout)
	if err != nil {
		return node.CauseMissingOutput, err
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if err := s.cfg.Registry.Publish(name, values[name]); err != nil {
			return node.CausePlaceholderConflict, err
		}
	}
	return node.CauseNone, nil
}

func (s *Scheduler) transition(ctx context.Context, n *node.Node, to node.State, cause node.Cause) bool {
	from, ok := n.Transition(to)
	if !ok {
		ctxlog.FromContext(ctx).Error("Refused transition out of a terminal state.", "from", from, "to", to)
		return false
	}
	if s.cfg.Events != nil {
		s.cfg.Events.Publish(progress.Event{
			SessionID: s.cfg.Recorder.ID(),
			Index:     n.Index(),
			From:      from,
			To:        to,
			Cause:     cause,
			At:        s.now(),
		})
	}
	return true
}

// finish moves n to its terminal state and records the result.
func (s *Scheduler) finish(ctx context.Context, n *node.Node, res session.StepResult) {
	logger := ctxlog.FromContext(ctx)
	if !s.transition(ctx, n, res.Status, res.Cause) {
		return
	}
	res.Index = n.Index()
	if res.EndedAt.IsZero() {
		res.EndedAt = s.now()
	}
	if err := s.cfg.Recorder.Record(res); err != nil {
		logger.Error("Failed to record step result.", "error", err)
	}

	switch res.Status {
	case node.Success:
		logger.Info("✅ Step succeeded.")
	case node.Skipped:
		logger.Warn("⏭️ Step skipped.", "cause", res.Cause, "reason", res.Error)
	default:
		logger.Warn("❌ Step did not succeed.", "status", res.Status, "cause", res.Cause, "error", res.Error)
	}
}

func fromExecutor(res executor.Result) session.StepResult {
	out := session.StepResult{
		Status:          res.Status,
		Cause:           res.Cause,
		Command:         res.Command,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		ExitCode:        res.ExitCode,
		StartedAt:       res.StartedAt,
		Duration:        res.Duration,
	}
	if !res.StartedAt.IsZero() {
		out.EndedAt = res.StartedAt.Add(res.Duration)
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
