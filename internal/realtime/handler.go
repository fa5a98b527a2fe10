package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/clinic-queue/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is same-origin behind the CORS middleware; the websocket
	// endpoint accepts any origin and relies on the subscribe frame carrying
	// no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeFrame is the client's first message on a fresh connection.
type subscribeFrame struct {
	Action   string `json:"action"`
	ClinicID string `json:"clinicId"`
}

// WSHandler upgrades HTTP connections and bridges them to the hub.
type WSHandler struct {
	hub    *Hub
	logger *logging.Logger
}

// NewWSHandler creates a websocket handler.
func NewWSHandler(hub *Hub, logger *logging.Logger) *WSHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WSHandler{hub: hub, logger: logger}
}

// ServeHTTP handles GET /ws. The scope comes from the clinic_id query
// parameter or, when absent, from the first frame
// {"action":"subscribe","clinicId":"..."}. No clinic id means global change
// signals only.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	clinicID := r.URL.Query().Get("clinic_id")
	if clinicID == "" {
		clinicID = h.awaitSubscribe(conn)
	}

	var sub *Subscriber
	if clinicID != "" {
		sub = h.hub.Subscribe(context.Background(), clinicID)
	} else {
		sub = h.hub.SubscribeGlobal()
	}
	h.logger.Info("viewer connected", "clinic_id", clinicID, "remote", r.RemoteAddr)

	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

// awaitSubscribe reads the subscribe frame, returning "" on timeout or a
// frame without a clinic id.
func (h *WSHandler) awaitSubscribe(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var frame subscribeFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return ""
	}
	if frame.Action != "subscribe" {
		return ""
	}
	return frame.ClinicID
}

// readPump consumes client frames until the connection dies, keeping the
// pong deadline fresh. Clients send nothing of interest after subscribing.
func (h *WSHandler) readPump(conn *websocket.Conn, sub *Subscriber) {
	defer func() {
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
	}
}

// writePump pushes hub messages and periodic pings to the client.
func (h *WSHandler) writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
