//go:build !windows

package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/testutil"
)

// Test for: A failing process records its exit code and stderr, and the run
// still completes the independent steps.
func TestCoreExecution_NonZeroExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	planJSON := `{"steps": [
		{"index": 0, "action_kind": "shell_command", "command_template": "echo denied >&2; exit 3"},
		{"index": 1, "action_kind": "shell_command", "command_template": "echo still here"}
	]}`

	// --- Act ---
	result := testutil.RunIntegrationTest(t, map[string]string{"plan.json": planJSON}, "plan.json")

	// --- Assert ---
	require.NoError(t, result.Err)
	testutil.AssertStepStatus(t, result.Session, 0, node.Failed, node.CauseNonZeroExit)
	testutil.AssertStepStatus(t, result.Session, 1, node.Success, node.CauseNone)

	failed, _ := result.Session.Result(0)
	require.NotNil(t, failed.ExitCode)
	require.Equal(t, 3, *failed.ExitCode)
	require.Equal(t, "denied\n", failed.Stderr)
	require.Contains(t, result.Transcript, "exit=3")
}
