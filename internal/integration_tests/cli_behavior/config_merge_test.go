package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Test for: Settings merge with flags over environment over config file over
// defaults.
func TestCLIBehavior_ConfigPrecedence(t *testing.T) {
	home := isolate(t)
	planPath := writeFile(t, t.TempDir(), "plan.json", singleStepPlan)
	writeFile(t, home, "config.toml", `
log_level = "debug"
step_timeout = "3s"
`)

	t.Run("config file", func(t *testing.T) {
		runner := &timeoutRecorder{timeouts: map[int]time.Duration{}}
		res := runCLI(runner, "run", planPath)
		require.NoError(t, res.err)
		require.Equal(t, 3*time.Second, runner.timeout(0))
		require.Contains(t, res.logs, "level=DEBUG")
	})

	t.Run("environment beats file", func(t *testing.T) {
		t.Setenv("PLANEXEC_STEP_TIMEOUT", "4s")
		t.Setenv("PLANEXEC_LOG_FORMAT", "json")
		runner := &timeoutRecorder{timeouts: map[int]time.Duration{}}
		res := runCLI(runner, "run", planPath)
		require.NoError(t, res.err)
		require.Equal(t, 4*time.Second, runner.timeout(0))
		require.Contains(t, res.logs, `"level":"DEBUG"`)
	})

	t.Run("flag beats environment", func(t *testing.T) {
		t.Setenv("PLANEXEC_STEP_TIMEOUT", "4s")
		runner := &timeoutRecorder{timeouts: map[int]time.Duration{}}
		res := runCLI(runner, "--log-level", "warn", "run", "--timeout", "5s", planPath)
		require.NoError(t, res.err)
		require.Equal(t, 5*time.Second, runner.timeout(0))
		require.NotContains(t, res.logs, "level=DEBUG")
		require.NotContains(t, res.logs, "level=INFO")
	})
}

// Test for: An explicit --config that does not exist is a usage error.
func TestCLIBehavior_MissingConfigFile(t *testing.T) {
	isolate(t)
	planPath := writeFile(t, t.TempDir(), "plan.json", singleStepPlan)

	res := runCLI(&timeoutRecorder{timeouts: map[int]time.Duration{}}, "--config", "/nonexistent/planexec.toml", "run", planPath)
	requireExitCode(t, res.err, 2)
}

// Test for: A step's own timeout is not replaced by the configured default.
func TestCLIBehavior_StepTimeoutWins(t *testing.T) {
	isolate(t)
	planPath := writeFile(t, t.TempDir(), "plan.json",
		`{"steps": [{"index": 0, "action_kind": "shell_command", "command_template": "uname -a", "timeout": "750ms"}]}`)

	runner := &timeoutRecorder{timeouts: map[int]time.Duration{}}
	res := runCLI(runner, "run", "--timeout", "5s", planPath)
	require.NoError(t, res.err)
	require.Equal(t, 750*time.Millisecond, runner.timeout(0))
}
