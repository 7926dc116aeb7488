package toolresolver

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/vk/planexec/internal/ctxlog"
	"golang.org/x/sync/singleflight"
)

// Outcome is the result of Ensure.
type Outcome int

const (
	Unavailable Outcome = iota
	Ready
	Installed
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case Installed:
		return "installed"
	default:
		return "unavailable"
	}
}

var (
	ErrToolUnsupported = errors.New("tool is not supported on this platform")
	ErrStillMissing    = errors.New("tool still missing after installation")
)

// Prober checks whether a tool is present on the host.
type Prober interface {
	Present(ctx context.Context, tool string) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, tool string) bool

func (f ProberFunc) Present(ctx context.Context, tool string) bool {
	return f(ctx, tool)
}

// PathProber looks tools up on the executable search path.
var PathProber = ProberFunc(func(_ context.Context, tool string) bool {
	_, err := exec.LookPath(tool)
	return err == nil
})

type resolution struct {
	outcome Outcome
	err     error
}

// Resolver caches tool availability for one session.
type Resolver struct {
	platform  Platform
	prober    Prober
	installer Installer

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]resolution
}

// New creates a Resolver for platform.
func New(platform Platform, prober Prober, installer Installer) *Resolver {
	return &Resolver{
		platform:  platform,
		prober:    prober,
		installer: installer,
		cache:     make(map[string]resolution),
	}
}

// Ensure returns Ready when tool is present, Installed when it was missing and
// has been installed, and Unavailable with a reason otherwise.
func (r *Resolver) Ensure(ctx context.Context, tool string) (Outcome, error) {
	if res, ok := r.cached(tool); ok {
		return cachedOutcome(res), res.err
	}

	v, _, _ := r.group.Do(tool, func() (any, error) {
		if res, ok := r.cached(tool); ok {
			return resolution{cachedOutcome(res), res.err}, nil
		}
		res := r.resolve(ctx, tool)
		// An interrupted resolution says nothing about the tool.
		if ctx.Err() == nil {
			r.mu.Lock()
			r.cache[tool] = res
			r.mu.Unlock()
		}
		return res, nil
	})
	res := v.(resolution)
	return res.outcome, res.err
}

// cachedOutcome reports a tool installed earlier in the session as Ready, so
// only the first caller sees Installed.
func cachedOutcome(res resolution) Outcome {
	if res.outcome == Installed {
		return Ready
	}
	return res.outcome
}

func (r *Resolver) cached(tool string) (resolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.cache[tool]
	return res, ok
}

func (r *Resolver) resolve(ctx context.Context, tool string) resolution {
	logger := ctxlog.FromContext(ctx).With("tool", tool, "platform", r.platform.String())

	if !r.platform.Supports(tool) {
		logger.Warn("Tool is not supported on this platform.")
		return resolution{Unavailable, fmt.Errorf("%w: %s on %s", ErrToolUnsupported, tool, r.platform)}
	}
	if r.prober.Present(ctx, tool) {
		logger.Debug("Tool is present.")
		return resolution{outcome: Ready}
	}
	if !r.platform.CanInstall() {
		logger.Warn("Tool is missing and cannot be installed on this platform.")
		return resolution{Unavailable, fmt.Errorf("%s is missing: %w: %s", tool, ErrInstallUnsupported, r.platform)}
	}

	logger.Info("Tool is missing, attempting installation.")
	if err := r.installer.Install(ctx, tool, r.platform); err != nil {
		logger.Error("Tool installation failed.", "error", err)
		return resolution{Unavailable, fmt.Errorf("%s is missing: %w", tool, err)}
	}
	if !r.prober.Present(ctx, tool) {
		logger.Error("Tool still missing after installation.")
		return resolution{Unavailable, fmt.Errorf("%w: %s", ErrStillMissing, tool)}
	}
	logger.Info("✅ Tool installed.")
	return resolution{outcome: Installed}
}
