package progress

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/vk/planexec/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// TransitionEvent is the socket.io event name used for step transitions.
const TransitionEvent = "step_transition"

const connectTimeout = 15 * time.Second

// SocketIOSink forwards transitions to a remote socket.io display.
type SocketIOSink struct {
	client *socket.Socket
	logger *slog.Logger
}

// SocketIOOptions configures DialSocketIO.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// DialSocketIO connects to a socket.io server and waits for the connection
// to be established.
func DialSocketIO(ctx context.Context, opts SocketIOOptions) (*SocketIOSink, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", opts.URL)
	logger.Debug("Connecting progress sink...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	clientOpts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		clientOpts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		clientOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	clientOpts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, clientOpts)
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}
	io := manager.Socket(namespace, clientOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Progress sink connected", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIOSink{client: io, logger: logger}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// Handle emits ev as a step_transition message.
func (s *SocketIOSink) Handle(ev Event) {
	s.client.Emit(TransitionEvent, eventPayload(ev))
}

// Close disconnects from the server.
func (s *SocketIOSink) Close() {
	s.logger.Debug("Disconnecting progress sink", "sid", s.client.Id())
	s.client.Disconnect()
}

// eventPayload flattens ev into the map shape socket.io encodes as JSON.
func eventPayload(ev Event) map[string]any {
	payload := map[string]any{
		"session_id": ev.SessionID,
		"index":      ev.Index,
		"from":       ev.From.String(),
		"to":         ev.To.String(),
		"at":         ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Cause != "" {
		payload["cause"] = string(ev.Cause)
	}
	return payload
}
