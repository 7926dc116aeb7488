package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/testutil"
)

// Test for: A step consuming several placeholders waits for every producer.
func TestDagConcurrency_FanInSynchronization(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	planYAML := `
steps:
  - index: 0
    action_kind: discovery
    command_template: find gateway
    produces: [gateway]
  - index: 1
    action_kind: discovery
    command_template: find subnet
    produces: [subnet_cidr]
  - index: 2
    action_kind: shell_command
    command_template: "nmap -sn {subnet_cidr} --exclude {gateway}"
`
	runner := testutil.NewSleeperRunner(50 * time.Millisecond)
	runner.Stdout[0] = "gateway: 10.10.0.1\n"
	runner.Stdout[1] = "inet 10.10.0.23/16 brd 10.10.255.255\n"

	// --- Act ---
	result := testutil.RunIntegrationTest(t, map[string]string{"plan.yaml": planYAML}, "plan.yaml", sleeperOptions(runner)...)

	// --- Assert ---
	require.NoError(t, result.Err)
	testutil.AssertStepStatus(t, result.Session, 2, node.Success, node.CauseNone)
	testutil.AssertRanBefore(t, runner, 0, 2)
	testutil.AssertRanBefore(t, runner, 1, 2)
	testutil.AssertConcurrent(t, runner, 0, 1)
	require.Equal(t, "nmap -sn 10.10.0.23/16 --exclude 10.10.0.1", runner.Command(2))
}
