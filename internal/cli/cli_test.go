package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/executor"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/plan"
	"github.com/vk/planexec/internal/session"
	"github.com/vk/planexec/internal/toolresolver"
)

type stubRunner struct {
	fail map[int]bool
}

func (r stubRunner) Execute(_ context.Context, st plan.Step, values executor.Substituter, _ time.Duration) executor.Result {
	cmd, _ := values.Substitute(st.CommandTemplate)
	if r.fail[st.Index] {
		code := 1
		return executor.Result{Status: node.Failed, Cause: node.CauseNonZeroExit, Command: cmd, ExitCode: &code}
	}
	return executor.Result{Status: node.Success, Command: cmd, Stdout: "gateway=10.0.0.1\n", StartedAt: time.Now()}
}

type cliHarness struct {
	store   session.Store
	planDir string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Chdir(home)

	store, err := session.OpenFileStore(filepath.Join(home, "sessions"))
	require.NoError(t, err)
	return &cliHarness{store: store, planDir: t.TempDir()}
}

func (h *cliHarness) plan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(h.planDir, "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (h *cliHarness) execute(runner stubRunner, args ...string) (string, error) {
	var out, logs bytes.Buffer
	err := Execute(context.Background(), args, &out, &logs,
		app.WithStore(h.store),
		app.WithRunner(runner),
		app.WithToolHost(toolresolver.KaliLinux, toolresolver.ProberFunc(func(context.Context, string) bool { return true }), nil),
	)
	return out.String(), err
}

const twoStepPlan = `{"steps": [
  {"index": 0, "action_kind": "discovery", "command_template": "ip route", "produces": ["gateway"]},
  {"index": 1, "action_kind": "shell_command", "command_template": "ping {gateway}"}
]}`

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, code, exitErr.Code, exitErr.Message)
}

func TestExecute_Run(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.execute(stubRunner{}, "run", h.plan(t, twoStepPlan), "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Step [1] SUCCESS")
	assert.Contains(t, out, "$ ping 10.0.0.1")
}

func TestExecute_RunStrict(t *testing.T) {
	h := newCLIHarness(t)
	path := h.plan(t, twoStepPlan)

	_, err := h.execute(stubRunner{fail: map[int]bool{0: true}}, "run", path)
	require.NoError(t, err, "failed steps are not an error without --strict")

	_, err = h.execute(stubRunner{fail: map[int]bool{0: true}}, "run", "--strict", path)
	requireExitCode(t, err, ExitStepsFailed)
}

func TestExecute_RunRejectedPlan(t *testing.T) {
	h := newCLIHarness(t)
	path := h.plan(t, `{"steps": [{"index": 0, "action_kind": "shell_command", "command_template": "ping {gateway}"}]}`)

	_, err := h.execute(stubRunner{}, "run", path)
	requireExitCode(t, err, ExitPlanRejected)
}

func TestExecute_UsageErrors(t *testing.T) {
	h := newCLIHarness(t)

	testCases := map[string][]string{
		"missing plan":     {"run"},
		"unknown flag":     {"run", "--bogus", "plan.json"},
		"unknown command":  {"explode"},
		"bad log level":    {"--log-level", "loud", "sessions", "list"},
		"too many args":    {"validate", "a.json", "b.json"},
		"unknown session":  {"sessions", "show", "does-not-exist"},
		"invalid duration": {"run", "--timeout", "soon", "plan.json"},
	}
	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := h.execute(stubRunner{}, args...)
			requireExitCode(t, err, ExitUsage)
		})
	}
}

func TestExecute_Validate(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.execute(stubRunner{}, "validate", h.plan(t, twoStepPlan))
	require.NoError(t, err)
	assert.Contains(t, out, "Plan is valid: 2 steps")
	assert.Contains(t, out, "Order: [0 1]")
}

func TestExecute_Sessions(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.execute(stubRunner{}, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded.")

	_, err = h.execute(stubRunner{}, "run", h.plan(t, twoStepPlan))
	require.NoError(t, err)

	list, err := h.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	out, err = h.execute(stubRunner{}, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "completed")

	out, err = h.execute(stubRunner{}, "sessions", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Session "+id)
	assert.Contains(t, out, "gateway = 10.0.0.1")
}
