package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/planexec/internal/ctxlog"
	"github.com/vk/planexec/internal/progress"
)

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) statusMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.Handle("GET /events", progress.NewWebsocketHandler(a.bus, a.logger))
	return mux
}

// StartStatusServer serves /health and the /events websocket on port. Port
// zero picks a free port. It returns a local address for the server.
func (a *App) StartStatusServer(ctx context.Context, port int) (string, error) {
	logger := ctxlog.FromContext(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.httpServer != nil {
		return "", errors.New("status server already running")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return "", fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	srv := &http.Server{
		Handler:           a.statusMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.httpServer = srv

	addr := fmt.Sprintf("localhost:%d", ln.Addr().(*net.TCPAddr).Port)
	go func() {
		logger.Info("🩺 Status server starting", "address", "http://"+addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
	return addr, nil
}

func (a *App) closeStatusServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()
	if srv == nil {
		logger.Debug("Status server was not running.")
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down status server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Status server shut down gracefully.")
	return nil
}
