package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/vk/planexec/internal/config"
	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/localsession"
	"github.com/vk/planexec/internal/progress"
	"github.com/vk/planexec/internal/scheduler"
	"github.com/vk/planexec/internal/session"
	"github.com/vk/planexec/internal/toolresolver"
)

// ErrPlanRejected marks failures that happen before any step runs: the plan
// could not be read, failed validation or has an invalid dependency graph.
var ErrPlanRejected = errors.New("plan rejected")

// Option customizes an App. Options exist mainly to substitute collaborators
// in tests.
type Option func(*options)

type options struct {
	store     session.Store
	runner    scheduler.Runner
	prober    toolresolver.Prober
	installer toolresolver.Installer
	platform  *toolresolver.Platform
}

// WithStore replaces the configured session store.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRunner replaces the process executor.
func WithRunner(r scheduler.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithToolHost replaces tool detection and installation.
func WithToolHost(p toolresolver.Platform, prober toolresolver.Prober, installer toolresolver.Installer) Option {
	return func(o *options) {
		o.platform = &p
		o.prober = prober
		o.installer = installer
	}
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *config.Config
	store   session.Store
	bus     *progress.Bus
	factory *localsession.Factory

	mu         sync.Mutex
	httpServer *http.Server
	closers    []func()
}

// NewApp creates an App writing transcripts to outW and logs to logW.
func NewApp(outW, logW io.Writer, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")
	ctx := ctxlog.WithLogger(context.Background(), logger)

	store := o.store
	if store == nil {
		var err error
		if store, err = openStore(ctx, cfg.Session); err != nil {
			return nil, err
		}
	}

	platform := toolresolver.DetectPlatform()
	if o.platform != nil {
		platform = *o.platform
	}
	installer := o.installer
	if installer == nil && cfg.Installer.Enabled {
		installer = toolresolver.NewPackageInstaller(cfg.Installer.UseSudo)
	}
	logger.Debug("Tool host detected.", "platform", platform.String(), "installer_enabled", installer != nil)

	bus := progress.NewBus()
	bus.Attach(progress.LogSink(logger))

	factory := localsession.NewFactory(localsession.Options{
		Workers:        cfg.Workers,
		DefaultTimeout: cfg.StepTimeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
		Platform:       platform,
		Prober:         o.prober,
		Installer:      installer,
		Runner:         o.runner,
		Events:         bus,
	})

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		store:   store,
		bus:     bus,
		factory: factory,
	}, nil
}

func openStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return session.OpenFileStore(cfg.Dir)
	case config.BackendSQLite:
		return session.OpenSQLite(ctx, filepath.Join(cfg.Dir, "sessions.db"))
	case config.BackendMemory:
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Backend)
	}
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Close stops the status server, flushes progress sinks and closes the store.
func (a *App) Close() error {
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	a.logger.Debug("Closing application.")

	var errs []error
	if err := a.closeStatusServer(ctx); err != nil {
		errs = append(errs, err)
	}
	a.bus.Close()

	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for _, c := range closers {
		c()
	}

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session store: %w", err))
	}
	return errors.Join(errs...)
}
