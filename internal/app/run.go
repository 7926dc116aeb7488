package app

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/localsession"
	"github.com/vk/planexec/internal/plan"
	"github.com/vk/planexec/internal/progress"
	"github.com/vk/planexec/internal/session"
)

// RunOptions describes one plan run.
type RunOptions struct {
	PlanPath string
	// Query overrides the query stored in the plan document.
	Query string
	// OutputPath, when set, also receives the transcript as plain text.
	OutputPath string
	// Color enables styled transcript output.
	Color bool
}

// Run loads, validates and executes a plan, persists the session and writes
// its transcript. Plan-level failures wrap ErrPlanRejected. Step failures are
// not errors; they are part of the returned session.
func (a *App) Run(ctx context.Context, opts RunOptions) (*session.Session, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "plan", opts.PlanPath)

	sess, err := a.prepare(ctx, opts.PlanPath, opts.Query)
	if err != nil {
		return nil, err
	}

	if a.config.StatusPort > 0 {
		if _, err := a.StartStatusServer(ctx, a.config.StatusPort); err != nil {
			a.logger.Warn("Status server not started.", "error", err)
		}
	}
	a.attachSocketIO(ctx)

	sealed := sess.Run(ctx)
	sum := sealed.Summarize()
	a.logger.Info("📋 Session finished.", "session_id", sealed.ID, "outcome", sealed.Outcome, "steps", sum.Steps, "not_successful", sum.Failed)

	// The record is written even when the run was cancelled.
	if err := a.store.Save(context.WithoutCancel(ctx), sealed); err != nil {
		return sealed, fmt.Errorf("failed to save session: %w", err)
	}

	if err := session.RenderTranscript(a.outW, sealed, opts.Color); err != nil {
		return sealed, fmt.Errorf("failed to write transcript: %w", err)
	}
	if opts.OutputPath != "" {
		var buf bytes.Buffer
		if err := session.RenderTranscript(&buf, sealed, false); err != nil {
			return sealed, fmt.Errorf("failed to render transcript: %w", err)
		}
		if err := os.WriteFile(opts.OutputPath, buf.Bytes(), 0o644); err != nil {
			return sealed, fmt.Errorf("failed to write output file: %w", err)
		}
		a.logger.Info("💾 Transcript saved.", "path", opts.OutputPath)
	}
	return sealed, nil
}

// Validate loads a plan and builds its dependency graph without running it.
func (a *App) Validate(ctx context.Context, planPath string) (*localsession.Session, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	return a.prepare(ctx, planPath, "")
}

func (a *App) prepare(ctx context.Context, planPath, query string) (*localsession.Session, error) {
	p, err := plan.Load(ctx, planPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanRejected, err)
	}
	if query != "" {
		p.Query = query
	}
	sess, err := a.factory.NewSession(ctx, *p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanRejected, err)
	}
	a.logger.Debug("Plan accepted.", "steps", len(p.Steps), "session_id", sess.ID)
	return sess, nil
}

// attachSocketIO forwards progress events to a socket.io server when one is
// configured. A server that cannot be reached only costs the live view.
func (a *App) attachSocketIO(ctx context.Context) {
	url := a.config.Progress.SocketIOURL
	if url == "" {
		return
	}
	sink, err := progress.DialSocketIO(ctx, progress.SocketIOOptions{
		URL:       url,
		Namespace: a.config.Progress.SocketIONamespace,
	})
	if err != nil {
		a.logger.Warn("Progress socket.io sink unavailable.", "url", url, "error", err)
		return
	}
	a.bus.Attach(sink)
	a.mu.Lock()
	a.closers = append(a.closers, sink.Close)
	a.mu.Unlock()
}

// ListSessions returns stored session summaries, newest first.
func (a *App) ListSessions(ctx context.Context) ([]session.Summary, error) {
	return a.store.List(ctxlog.WithLogger(ctx, a.logger))
}

// ShowSession writes the transcript of a stored session to the output writer.
func (a *App) ShowSession(ctx context.Context, id string, color bool) error {
	sess, err := a.store.Load(ctxlog.WithLogger(ctx, a.logger), id)
	if err != nil {
		return err
	}
	return session.RenderTranscript(a.outW, sess, color)
}
