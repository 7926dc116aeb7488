package dag

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/plan"
)

// Build constructs a validated dependency graph for p. Names in seeded are
// resolved before the run starts and need no producer.
func Build(ctx context.Context, p plan.Plan, seeded []string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "steps", len(p.Steps))
	g := New()

	// First pass: one node per step, and the producer index.
	for _, s := range p.Steps {
		g.AddNode(s.Index)
		for _, name := range s.Produces {
			g.producers[name] = append(g.producers[name], s.Index)
		}
	}
	for name, producers := range g.producers {
		slices.Sort(producers)
		if len(producers) > 1 {
			logger.Warn("Build: Placeholder has several producers; the first to publish wins.", "placeholder", name, "producers", producers)
		}
	}
	logger.Debug("Build: Node creation complete.", "node_count", g.Len())

	// Second pass: link each consumer after every producer of its names.
	for _, s := range p.Steps {
		for _, name := range s.Consumes {
			producers := g.producers[name]
			if len(producers) == 0 {
				if slices.Contains(seeded, name) {
					continue
				}
				return nil, &MissingProducerError{Index: s.Index, Placeholder: name}
			}
			for _, from := range producers {
				if from == s.Index {
					return nil, fmt.Errorf("error validating dependency graph: %w", &CycleError{Indices: []int{s.Index}})
				}
				if err := g.AddEdge(from, s.Index); err != nil {
					return nil, err
				}
				logger.Debug("Build: Linked steps.", "producer", from, "consumer", s.Index, "placeholder", name)
			}
		}
	}
	logger.Debug("Build: Node linking complete.")

	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")
	return g, nil
}
