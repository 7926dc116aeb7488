package integration_tests

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/cli"
	"github.com/vk/planexec/internal/executor"
	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/plan"
	"github.com/vk/planexec/internal/toolresolver"
)

// timeoutRecorder succeeds every step and remembers the timeout it was given.
type timeoutRecorder struct {
	mu       sync.Mutex
	timeouts map[int]time.Duration
}

func (r *timeoutRecorder) Execute(_ context.Context, st plan.Step, values executor.Substituter, timeout time.Duration) executor.Result {
	r.mu.Lock()
	r.timeouts[st.Index] = timeout
	r.mu.Unlock()
	cmd, _ := values.Substitute(st.CommandTemplate)
	code := 0
	return executor.Result{Status: node.Success, Command: cmd, ExitCode: &code, StartedAt: time.Now()}
}

func (r *timeoutRecorder) timeout(index int) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeouts[index]
}

// isolate points HOME, XDG_CONFIG_HOME and the working directory at a fresh
// directory so no real configuration leaks in, and returns that directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("PLANEXEC_SESSION_DIR", filepath.Join(home, "sessions"))
	t.Setenv("PLANEXEC_SESSION_BACKEND", "file")
	t.Chdir(home)
	return home
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type cliResult struct {
	out  string
	logs string
	err  error
}

func runCLI(runner *timeoutRecorder, args ...string) cliResult {
	var out, logs bytes.Buffer
	err := cli.Execute(context.Background(), args, &out, &logs,
		app.WithRunner(runner),
		app.WithToolHost(toolresolver.KaliLinux, toolresolver.ProberFunc(func(context.Context, string) bool { return true }), toolresolver.DisabledInstaller),
	)
	return cliResult{out: out.String(), logs: logs.String(), err: err}
}

const singleStepPlan = `{"steps": [{"index": 0, "action_kind": "shell_command", "command_template": "uname -a"}]}`
