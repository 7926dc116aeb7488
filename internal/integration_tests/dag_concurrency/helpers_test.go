package integration_tests

import (
	"context"

	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/testutil"
	"github.com/vk/planexec/internal/toolresolver"
)

// sleeperOptions runs every step through runner on a host where every tool
// is present.
func sleeperOptions(runner *testutil.SleeperRunner) []app.Option {
	return []app.Option{
		app.WithRunner(runner),
		app.WithToolHost(toolresolver.KaliLinux, toolresolver.ProberFunc(func(context.Context, string) bool { return true }), nil),
	}
}
