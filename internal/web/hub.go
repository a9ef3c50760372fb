package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"concertmap/internal/fetch"
	"concertmap/internal/filter"
	"concertmap/internal/finder"
	"concertmap/internal/geocode"
	appLog "concertmap/internal/log"
	"concertmap/internal/mapview"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	clientBuffer = 256
)

// Message types sent over /ws.
const (
	MessageCommand = "command"
	MessageAlert   = "alert"
	MessageState   = "state"
)

// Message is one frame of the browser stream.
type Message struct {
	Type    string           `json:"type"`
	Command *mapview.Command `json:"command,omitempty"`
	Alert   *Alert           `json:"alert,omitempty"`
	State   *finder.Snapshot `json:"state,omitempty"`
}

// Alert is a failure the browser shows to the user.
type Alert struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Hub fans map commands, alerts and state out to every connected browser.
// It implements mapview.Publisher and finder.Alerter.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish implements mapview.Publisher.
func (h *Hub) Publish(cmd mapview.Command) {
	h.broadcast(Message{Type: MessageCommand, Command: &cmd})
}

// Alert implements finder.Alerter.
func (h *Hub) Alert(err error) {
	if err == nil {
		return
	}
	a := alertOf(err)
	appLog.Warn("alert", "kind", a.Kind, "err", err)
	h.broadcast(Message{Type: MessageAlert, Alert: &a})
}

// PushState sends a state snapshot to every client.
func (h *Hub) PushState(snap finder.Snapshot) {
	h.broadcast(Message{Type: MessageState, State: &snap})
}

// Clients reports the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

func alertOf(err error) Alert {
	var (
		fe *fetch.Error
		re *filter.Error
		ge *geocode.Error
	)
	kind := "error"
	switch {
	case errors.Is(err, fetch.ErrTimeout):
		kind = "timeout"
	case errors.As(err, &re):
		kind = "filter"
	case errors.As(err, &ge):
		kind = "geocode"
	case errors.As(err, &fe):
		kind = "search"
	}
	return Alert{Kind: kind, Message: err.Error()}
}

func (h *Hub) broadcast(m Message) {
	payload, err := json.Marshal(m)
	if err != nil {
		appLog.Error("failed to encode ws message", err, "type", m.Type)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow reader. It reconnects and gets a full replay.
			appLog.Warn("dropping slow ws client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			c.close()
		}
	}
}

// upgrade completes the websocket handshake. The caller must attach the
// connection with register.
func (h *Hub) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

// register queues initial ahead of anything broadcast later. It must be
// called on the loop goroutine so no command lands between the replay
// and the subscription.
func (h *Hub) register(conn *websocket.Conn, initial []Message) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer+len(initial)),
	}
	for _, m := range initial {
		payload, err := json.Marshal(m)
		if err != nil {
			appLog.Error("failed to encode ws message", err, "type", m.Type)
			continue
		}
		c.send <- payload
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// serve runs the client's pumps until the connection ends.
func (h *Hub) serve(c *client) {
	go c.writePump()
	c.readPump()
	h.unregister(c)
}

// readPump discards inbound frames; the browser sends actions over HTTP.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				appLog.Debug("ws read ended", "err", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				appLog.Debug("ws write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
