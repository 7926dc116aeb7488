package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/session"
)

// AssertStepStatus checks the recorded status and cause of a step.
func AssertStepStatus(t *testing.T, sess *session.Session, index int, status node.State, cause node.Cause) {
	t.Helper()

	res, ok := sess.Result(index)
	require.True(t, ok, "no result recorded for step %d", index)
	require.Equal(t, status, res.Status, "status of step %d (error: %s)", index, res.Error)
	require.Equal(t, cause, res.Cause, "cause of step %d", index)
}

// AssertRanBefore checks that step a finished before step b started.
func AssertRanBefore(t *testing.T, runner *SleeperRunner, a, b int) {
	t.Helper()

	ra, ok := runner.Record(a)
	require.True(t, ok, "step %d did not run", a)
	rb, ok := runner.Record(b)
	require.True(t, ok, "step %d did not run", b)
	require.False(t, rb.Start.Before(ra.End), "step %d started before step %d finished", b, a)
}

// AssertConcurrent checks that the execution windows of two steps overlap.
func AssertConcurrent(t *testing.T, runner *SleeperRunner, a, b int) {
	t.Helper()

	ra, ok := runner.Record(a)
	require.True(t, ok, "step %d did not run", a)
	rb, ok := runner.Record(b)
	require.True(t, ok, "step %d did not run", b)
	require.True(t, ra.Overlaps(rb), "steps %d and %d did not run concurrently", a, b)
}
