package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return ev.Type
}

func TestHubGreetsAndBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	hub.OnConnect(func() []any {
		return []any{map[string]string{"type": "status", "to": "Not Active"}}
	})
	go hub.Run(ctx)

	server := httptest.NewServer(hub.Handler())
	defer server.Close()

	conn := dial(t, server.URL)
	defer conn.Close()

	if got := readType(t, conn); got != "status" {
		t.Fatalf("greeting type = %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastJSON(map[string]string{"type": "log", "message": "hello"})
	if got := readType(t, conn); got != "log" {
		t.Errorf("broadcast type = %q", got)
	}
}

func TestBroadcastJSONDropsUnmarshalable(t *testing.T) {
	hub := NewHub()
	hub.BroadcastJSON(make(chan int))
	if len(hub.broadcast) != 0 {
		t.Error("unmarshalable value was queued")
	}
}

func TestHubFiltersByType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	hub.OnConnect(func() []any {
		return []any{
			map[string]string{"type": "heartbeat"},
			map[string]string{"type": "status", "to": "Not Active"},
		}
	})
	go hub.Run(ctx)

	server := httptest.NewServer(hub.Handler())
	defer server.Close()

	conn := dial(t, server.URL+"?types=status,analysis")
	defer conn.Close()

	// The heartbeat greeting is filtered out.
	if got := readType(t, conn); got != "status" {
		t.Fatalf("first event = %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastJSON(map[string]string{"type": "log", "message": "skipped"})
	hub.BroadcastJSON(map[string]string{"type": "analysis", "title": "Mug"})
	if got := readType(t, conn); got != "analysis" {
		t.Errorf("broadcast type = %q", got)
	}
}

func TestParseTypes(t *testing.T) {
	if parseTypes("") != nil || parseTypes(" , ") != nil {
		t.Error("empty input should mean all types")
	}
	got := parseTypes("status, analysis,")
	if len(got) != 2 || !got["status"] || !got["analysis"] {
		t.Errorf("parseTypes = %v", got)
	}
}
