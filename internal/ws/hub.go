// Package ws provides a lightweight WebSocket pub/sub hub.
// Components broadcast JSON events through the hub, and every connected client
// receives them in real time. New clients are greeted with a snapshot so the
// status line renders before the next change. A client may narrow its stream
// with ?types=status,analysis; ping/pong keepalives clean up stale
// connections.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 3 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = 20 * time.Second
)

// client is one connection plus the event types it asked for. A nil types
// set means everything.
type client struct {
	conn  *websocket.Conn
	types map[string]bool
}

func (c *client) wants(typ string) bool {
	return c.types == nil || c.types[typ]
}

// message is a marshalled event tagged with its type for filtering.
type message struct {
	typ  string
	data []byte
}

// Hub manages WebSocket client connections and fans out broadcast messages
// to all of them. It is safe for concurrent use; register, unregister, and
// broadcast all go through channels.
type Hub struct {
	clients    map[*websocket.Conn]*client
	register   chan *client
	unregister chan *websocket.Conn
	broadcast  chan message
	upgrader   websocket.Upgrader

	count   atomic.Int64
	greetMu sync.RWMutex
	greet   func() []any
}

// NewHub allocates a hub with buffered channels.
// Call Run in a goroutine to start the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*client),
		register:   make(chan *client, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan message, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// OnConnect sets the function whose events are written to each new client
// before it joins the broadcast set.
func (h *Hub) OnConnect(fn func() []any) {
	h.greetMu.Lock()
	h.greet = fn
	h.greetMu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Run processes registrations, unregistrations, broadcasts, and keepalive
// pings in a single select loop. It closes all clients when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				_ = conn.Close()
			}
			h.clients = make(map[*websocket.Conn]*client)
			h.count.Store(0)
			return

		case c := <-h.register:
			if h.sendGreeting(c) {
				h.clients[c.conn] = c
			} else {
				_ = c.conn.Close()
			}

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			for conn, c := range h.clients {
				if !c.wants(msg.typ) {
					continue
				}
				if err := write(conn, websocket.TextMessage, msg.data); err != nil {
					h.drop(conn)
				}
			}

		case <-ping.C:
			for conn := range h.clients {
				if err := write(conn, websocket.PingMessage, nil); err != nil {
					h.drop(conn)
				}
			}
		}
		h.count.Store(int64(len(h.clients)))
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
}

func write(conn *websocket.Conn, kind int, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(kind, data)
}

func (h *Hub) sendGreeting(c *client) bool {
	h.greetMu.RLock()
	fn := h.greet
	h.greetMu.RUnlock()
	if fn == nil {
		return true
	}
	for _, v := range fn() {
		msg, ok := encode(v)
		if !ok || !c.wants(msg.typ) {
			continue
		}
		if err := write(c.conn, websocket.TextMessage, msg.data); err != nil {
			return false
		}
	}
	return true
}

// Handler returns an http.Handler that upgrades incoming requests to
// WebSocket connections and registers them with the hub.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types := parseTypes(r.URL.Query().Get("types"))
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			return
		}
		h.register <- &client{conn: conn, types: types}

		go func() {
			defer func() { h.unregister <- conn }()
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})

			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// parseTypes turns "status, analysis" into a set; empty input means all.
func parseTypes(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// BroadcastJSON marshals v to JSON and queues it for delivery to all
// interested clients. If the broadcast channel is full the message is
// silently dropped to avoid blocking the caller.
func (h *Hub) BroadcastJSON(v any) {
	msg, ok := encode(v)
	if !ok {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

func encode(v any) (message, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return message{}, false
	}
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(b, &head)
	return message{typ: head.Type, data: b}, true
}
