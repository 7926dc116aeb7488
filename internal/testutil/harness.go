package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/config"
	"github.com/vk/planexec/internal/session"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput  string
	Transcript string
	Session    *session.Session
	Err        error
	App        *app.App
}

// RunIntegrationTest writes files into a temporary directory and runs the
// plan at planFile (relative to it) with a background context.
func RunIntegrationTest(t *testing.T, files map[string]string, planFile string, opts ...app.Option) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, planFile, nil, opts...)
}

// RunIntegrationTestWithContext is RunIntegrationTest with a caller-provided
// context and an optional hook to adjust the configuration.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, planFile string, configure func(*config.Config), opts ...app.Option) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	cfg := app.TestConfig(t)
	cfg.Workers = 4
	if configure != nil {
		configure(cfg)
	}

	testApp, out, logs := app.SetupAppTest(t, cfg, opts...)
	sess, err := testApp.Run(ctx, app.RunOptions{PlanPath: filepath.Join(tmpDir, planFile)})

	if os.Getenv("PLANEXEC_TEST_LOGS") == "true" {
		t.Logf("--- Transcript for %s ---\n%s", t.Name(), out.String())
	}
	return &HarnessResult{
		LogOutput:  logs.String(),
		Transcript: out.String(),
		Session:    sess,
		Err:        err,
		App:        testApp,
	}
}
