package integration_tests

import (
	"context"

	"github.com/vk/planexec/internal/app"
	"github.com/vk/planexec/internal/testutil"
	"github.com/vk/planexec/internal/toolresolver"
)

// hostWith runs steps through runner on a Kali host where only the listed
// tools are installed and installation is refused.
func hostWith(runner *testutil.SleeperRunner, tools ...string) []app.Option {
	present := map[string]bool{}
	for _, tool := range tools {
		present[tool] = true
	}
	return []app.Option{
		app.WithRunner(runner),
		app.WithToolHost(
			toolresolver.KaliLinux,
			toolresolver.ProberFunc(func(_ context.Context, tool string) bool { return present[tool] }),
			toolresolver.DisabledInstaller,
		),
	}
}
