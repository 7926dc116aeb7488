package toolresolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/planexec/internal/ctxlog"
)

var (
	ErrInstallUnsupported = errors.New("installation is not supported on this platform")
	ErrInstallDisabled    = errors.New("tool installation is disabled")
)

// Installer installs a tool on a platform.
type Installer interface {
	Install(ctx context.Context, tool string, p Platform) error
}

// InstallerFunc adapts a function to the Installer interface.
type InstallerFunc func(ctx context.Context, tool string, p Platform) error

func (f InstallerFunc) Install(ctx context.Context, tool string, p Platform) error {
	return f(ctx, tool, p)
}

// DisabledInstaller refuses every installation.
var DisabledInstaller = InstallerFunc(func(context.Context, string, Platform) error {
	return ErrInstallDisabled
})

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PackageInstaller installs tools with the platform package manager: apt-get
// on Kali and winget on Windows.
type PackageInstaller struct {
	// UseSudo prefixes apt-get with sudo when not running as root.
	UseSudo bool
	run     runFunc
	isRoot  func() bool
}

// NewPackageInstaller creates an installer that shells out to the package manager.
func NewPackageInstaller(useSudo bool) *PackageInstaller {
	return &PackageInstaller{
		UseSudo: useSudo,
		run:     runCombined,
		isRoot:  func() bool { return os.Geteuid() == 0 },
	}
}

// Command returns the argv used to install tool on p.
func (i *PackageInstaller) Command(tool string, p Platform) ([]string, error) {
	switch p {
	case KaliLinux:
		argv := []string{"apt-get", "install", "-y", tool}
		if i.UseSudo && !i.isRoot() {
			argv = append([]string{"sudo"}, argv...)
		}
		return argv, nil
	case Windows:
		return []string{"winget", "install", "--silent", "--accept-package-agreements", tool}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInstallUnsupported, p)
	}
}

// Install runs the package manager and wraps its output into the error on failure.
func (i *PackageInstaller) Install(ctx context.Context, tool string, p Platform) error {
	argv, err := i.Command(tool, p)
	if err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("📦 Installing missing tool.", "tool", tool, "platform", p.String(), "command", strings.Join(argv, " "))

	out, err := i.run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("install of %s failed: %w: %s", tool, err, strings.TrimSpace(string(out)))
	}
	logger.Debug("Tool installation command completed.", "tool", tool)
	return nil
}
