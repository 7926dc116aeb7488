package integration_tests

import (
	"context"

	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/testutil"
	"github.com/vk/planexec/internal/toolresolver"
)

func sleeperOptions(runner *testutil.SleeperRunner) []app.Option {
	return []app.Option{
		app.WithRunner(runner),
		app.WithToolHost(toolresolver.KaliLinux, toolresolver.ProberFunc(func(context.Context, string) bool { return true }), toolresolver.DisabledInstaller),
	}
}
