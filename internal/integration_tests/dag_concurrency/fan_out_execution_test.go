package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/testutil"
)

// Test for: One producer feeds several consumers, which then run in parallel.
func TestDagConcurrency_FanOutExecution(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	planJSON := `{"steps": [
		{"index": 0, "action_kind": "discovery", "command_template": "ip route", "produces": ["gateway"]},
		{"index": 1, "action_kind": "shell_command", "command_template": "ping {gateway}"},
		{"index": 2, "action_kind": "shell_command", "command_template": "traceroute {gateway}"},
		{"index": 3, "action_kind": "shell_command", "command_template": "arping {gateway}"}
	]}`
	runner := testutil.NewSleeperRunner(100 * time.Millisecond)
	runner.Stdout[0] = "default via 172.16.0.1 dev eth0\n"

	// --- Act ---
	result := testutil.RunIntegrationTest(t, map[string]string{"plan.json": planJSON}, "plan.json", sleeperOptions(runner)...)

	// --- Assert ---
	require.NoError(t, result.Err)
	for _, consumer := range []int{1, 2, 3} {
		testutil.AssertStepStatus(t, result.Session, consumer, node.Success, node.CauseNone)
		testutil.AssertRanBefore(t, runner, 0, consumer)
	}
	testutil.AssertConcurrent(t, runner, 1, 2)
	testutil.AssertConcurrent(t, runner, 2, 3)
	require.Equal(t, "traceroute 172.16.0.1", runner.Command(2))
}
