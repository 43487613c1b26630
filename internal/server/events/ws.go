package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// session auth happens in-band via the authenticate message, so the
	// upgrade itself is open
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is what a connected client may send.
type clientMessage struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// authReply answers authenticate/auth_status messages.
type authReply struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
}

// ServeHTTP upgrades the request to a websocket and attaches it to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c, ok := h.register()
	if !ok {
		_ = ws.Close()
		return
	}

	go h.writePump(ws, c)
	h.readPump(r, ws, c)
}

func (h *Hub) readPump(r *http.Request, ws *websocket.Conn, c *conn) {
	defer func() {
		h.unregister(c)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "authenticate":
			ok := h.authenticate(r.Context(), c, msg.SessionToken)
			h.reply(c, authReply{Type: "auth_result", Authenticated: ok, UserID: c.userID})
		case "auth_status":
			h.reply(c, authReply{Type: "auth_status", Authenticated: c.userID != "", UserID: c.userID})
		}
	}
}

func (h *Hub) reply(c *conn, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.global[c]; ok {
		h.offer(c, raw)
	}
}

func (h *Hub) writePump(ws *websocket.Conn, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
