package progress

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The status server binds locally; displays may be served from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebsocketHandler streams bus events to websocket clients as JSON.
type WebsocketHandler struct {
	bus    *Bus
	logger *slog.Logger
}

// NewWebsocketHandler creates a handler streaming events from bus.
func NewWebsocketHandler(bus *Bus, logger *slog.Logger) *WebsocketHandler {
	return &WebsocketHandler{bus: bus, logger: logger}
}

// ServeHTTP upgrades the connection and writes events until the client
// disconnects or the bus closes.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	h.logger.Debug("Progress websocket connected", "remote", conn.RemoteAddr().String())

	events, unsubscribe := h.bus.Subscribe(DefaultBuffer)
	defer unsubscribe()

	// The client never sends anything meaningful; reading only detects close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "plan finished"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("Progress websocket write failed", "error", err)
				return
			}
		case <-gone:
			h.logger.Debug("Progress websocket closed by client")
			return
		}
	}
}
