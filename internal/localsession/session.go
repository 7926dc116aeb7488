package localsession

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/dag"
	"github.com/vk/planexec/internal/executor"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/placeholder"
	"github.com/vk/planexec/internal/plan"
	"github.com/vk/planexec/internal/scheduler"
	"github.com/vk/planexec/internal/session"
	"github.com/vk/planexec/internal/toolresolver"
)

// Options configures every session created by a Factory.
type Options struct {
	Workers        int
	DefaultTimeout time.Duration
	MaxOutputBytes int

	Platform  toolresolver.Platform
	Prober    toolresolver.Prober
	Installer toolresolver.Installer

	// Runner replaces the process executor. Nil means a real executor.
	Runner scheduler.Runner
	// Events receives state transitions of every session. Optional.
	Events scheduler.EventPublisher
	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
}

// Factory creates sessions.
type Factory struct {
	opts Options
}

// NewFactory creates a Factory, filling in defaults for unset options.
func NewFactory(opts Options) *Factory {
	if opts.Prober == nil {
		opts.Prober = toolresolver.PathProber
	}
	if opts.Installer == nil {
		opts.Installer = toolresolver.DisabledInstaller
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Factory{opts: opts}
}

// Session is one prepared plan run.
type Session struct {
	ID       string
	Plan     plan.Plan
	Graph    *dag.Graph
	Registry *placeholder.Registry
	Recorder *session.Recorder

	scheduler *scheduler.Scheduler
}

// NewSession validates p, seeds placeholders from its query and builds the
// dependency graph. Plan-level errors are returned before anything runs.
func (f *Factory) NewSession(ctx context.Context, p plan.Plan) (*Session, error) {
	logger := ctxlog.FromContext(ctx)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	registry := placeholder.NewRegistry()
	seeds := querySeeds(p)
	if err := registry.Seed(seeds); err != nil {
		return nil, fmt.Errorf("failed to seed placeholders: %w", err)
	}
	seeded := slices.Sorted(maps.Keys(seeds))
	if len(seeded) > 0 {
		logger.Debug("Seeded placeholders from query.", "names", seeded)
	}

	graph, err := dag.Build(ctx, p, seeded)
	if err != nil {
		return nil, err
	}

	runner := f.opts.Runner
	if runner == nil {
		runner = executor.New(executor.Options{MaxOutputBytes: f.opts.MaxOutputBytes})
	}

	id := f.opts.NewID()
	recorder := session.NewRecorder(id, p)
	sched, err := scheduler.New(scheduler.Config{
		Plan:           p,
		Graph:          graph,
		Registry:       registry,
		Tools:          toolresolver.New(f.opts.Platform, f.opts.Prober, f.opts.Installer),
		Runner:         runner,
		Recorder:       recorder,
		Events:         f.opts.Events,
		Workers:        f.opts.Workers,
		DefaultTimeout: f.opts.DefaultTimeout,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Session created.", "session_id", id, "steps", len(p.Steps))
	return &Session{
		ID:        id,
		Plan:      p,
		Graph:     graph,
		Registry:  registry,
		Recorder:  recorder,
		scheduler: sched,
	}, nil
}

// Run executes the plan and returns the sealed session record.
func (s *Session) Run(ctx context.Context) *session.Session {
	outcome := s.scheduler.Run(ctx)
	return s.Recorder.Seal(s.Registry.Snapshot(), outcome)
}

// State returns the live state of a step.
func (s *Session) State(index int) (node.State, bool) {
	return s.scheduler.State(index)
}

// querySeeds returns the query-derived placeholders that no step produces.
func querySeeds(p plan.Plan) map[string]string {
	seeds := placeholder.SeedFromQuery(p.Query)
	for _, st := range p.Steps {
		for _, name := range st.Produces {
			delete(seeds, name)
		}
	}
	return seeds
}
