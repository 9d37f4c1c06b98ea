package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketBridge talks to an external LLM bridge over a single websocket.
// Requests are written as JSON text frames; every frame read back is handed
// to the subscribed handler. The connection is dialled on first use and
// re-dialled on the next Send after it drops.
type WebSocketBridge struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(Payload)
}

// NewWebSocketBridge returns a bridge for url (ws:// or wss://).
func NewWebSocketBridge(url string, logger *slog.Logger) *WebSocketBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketBridge{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		log:    logger.With("component", "bridge", "bridge", "websocket"),
	}
}

// Subscribe registers the inbound handler. Later calls replace it.
func (b *WebSocketBridge) Subscribe(fn func(Payload)) {
	b.mu.Lock()
	b.handler = fn
	b.mu.Unlock()
}

// Send writes req to the bridge, dialling first if needed.
func (b *WebSocketBridge) Send(ctx context.Context, req Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", b.url, err)
		}
		b.conn = conn
		go b.readLoop(conn)
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = b.conn.SetWriteDeadline(deadline)
	if err := b.conn.WriteJSON(req); err != nil {
		_ = b.conn.Close()
		b.conn = nil
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Close drops the connection.
func (b *WebSocketBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *WebSocketBridge) readLoop(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				b.log.Debug("bridge connection closed", "error", err)
			}
			return
		}

		var p Payload
		if err := json.Unmarshal(msg, &p); err != nil {
			p = TextPayload(string(msg))
		}

		b.mu.Lock()
		fn := b.handler
		b.mu.Unlock()
		if fn != nil {
			fn(p)
		}
	}
}
