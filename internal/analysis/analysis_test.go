package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/large-farva/precision-lens/internal/status"
)

type fakeBridge struct {
	mu   sync.Mutex
	reqs []Request
	err  error
}

func (b *fakeBridge) Send(_ context.Context, req Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.reqs = append(b.reqs, req)
	return nil
}

// answeringBridge answers synchronously from inside Send, the way an
// in-process bridge would.
type answeringBridge struct {
	answer func()
}

func (b *answeringBridge) Send(context.Context, Request) error {
	b.answer()
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing", ``, "Analysis Complete."},
		{"null", `null`, "Analysis Complete."},
		{"empty string", `""`, "Analysis Complete."},
		{"object", `{"title":"Mug","use":"drink","description":"ceramic"}`, "Analysis: Mug"},
		{"json string", `"{\"title\":\"Mug\",\"use\":\"drink\",\"description\":\"ceramic\"}"`, "Analysis: Mug"},
		{"object without title", `{"use":"drink"}`, "Analysis: Unknown Object"},
		{"empty title", `{"title":""}`, "Analysis: Unknown Object"},
		{"json number in string", `"42"`, "Analysis: Unknown Object"},
		{"plain text", `"This is a picture of a mug on a desk"`, "LLM Text: This is a picture of a mug on ..."},
		{"short text", `"a mug"`, "LLM Text: a mug..."},
		{"string null", `"null"`, "LLM Text: null..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _ := Interpret(Payload{Data: json.RawMessage(tt.data)}, 30)
			if got != tt.want {
				t.Errorf("Interpret(%s) = %q, want %q", tt.data, got, tt.want)
			}
		})
	}
}

func TestInterpretFailure(t *testing.T) {
	got, res, text := Interpret(FailurePayload(errors.New("model not found")), 30)
	if got != "Analysis failed: model not found" || res != nil || text != got {
		t.Errorf("Interpret failure = %q, %v, %q", got, res, text)
	}
}

func TestInterpretPreviewCountsRunes(t *testing.T) {
	text := strings.Repeat("ü", 40)
	got, res, raw := Interpret(TextPayload(text), 30)
	if want := "LLM Text: " + strings.Repeat("ü", 30) + "..."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if res != nil || raw != text {
		t.Errorf("res=%v raw=%q", res, raw)
	}
}

func TestInterpretResultFields(t *testing.T) {
	_, res, _ := Interpret(Payload{Data: json.RawMessage(`{"title":"Mug","use":"drink","description":"ceramic"}`)}, 30)
	if res == nil || res.Use != "drink" || res.Description != "ceramic" {
		t.Fatalf("res = %+v", res)
	}
}

func TestDispatchWithoutBridge(t *testing.T) {
	rec := &status.Recorder{}
	d := New(Options{Status: rec, Logger: quietLogger()})

	err := d.Dispatch(context.Background(), []byte{0xff, 0xd8})
	if !errors.Is(err, ErrBridgeUnavailable) {
		t.Fatalf("expected ErrBridgeUnavailable, got %v", err)
	}
	if rec.Last() != StatusUnavailable {
		t.Errorf("status = %q", rec.Last())
	}
	if d.Available() {
		t.Error("Available with nil bridge")
	}
}

func TestDispatchSendsRequest(t *testing.T) {
	b := &fakeBridge{}
	d := New(Options{Bridge: b, Status: &status.Recorder{}, Logger: quietLogger()})

	img := []byte{0xff, 0xd8, 0xff, 0xe0}
	if err := d.Dispatch(context.Background(), img); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(b.reqs) != 1 {
		t.Fatalf("requests = %d", len(b.reqs))
	}
	req := b.reqs[0]
	if !req.UseLLM || req.Message != Instruction {
		t.Errorf("request = %+v", req)
	}
	if req.ImageBase64 != base64.StdEncoding.EncodeToString(img) {
		t.Errorf("image not base64 of input")
	}

	raw, _ := json.Marshal(req)
	for _, key := range []string{`"message"`, `"useLLM":true`, `"imageBase64"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("wire form %s missing %s", raw, key)
		}
	}
}

func TestDispatchSendError(t *testing.T) {
	rec := &status.Recorder{}
	d := New(Options{Bridge: &fakeBridge{err: errors.New("offline")}, Status: rec, Logger: quietLogger()})
	if err := d.Dispatch(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(rec.Last(), "Analysis failed:") {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestDispatchTimeout(t *testing.T) {
	rec := &status.Recorder{}
	d := New(Options{Bridge: &fakeBridge{}, Status: rec, Logger: quietLogger(), Timeout: 20 * time.Millisecond})

	if err := d.Dispatch(context.Background(), []byte{1}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitFor(t, func() bool { return rec.Last() == StatusTimedOut })
}

func TestResultCancelsTimeout(t *testing.T) {
	rec := &status.Recorder{}
	d := New(Options{Bridge: &fakeBridge{}, Status: rec, Logger: quietLogger(), Timeout: 30 * time.Millisecond})

	if err := d.Dispatch(context.Background(), []byte{1}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := d.OnResult(Payload{Data: json.RawMessage(`{"title":"Mug"}`)}); got != "Analysis: Mug" {
		t.Fatalf("OnResult = %q", got)
	}
	time.Sleep(80 * time.Millisecond)
	for _, m := range rec.Messages() {
		if m == StatusTimedOut {
			t.Fatal("timeout fired after result arrived")
		}
	}
}

func TestResultDuringSendCancelsTimeout(t *testing.T) {
	rec := &status.Recorder{}
	b := &answeringBridge{}
	d := New(Options{Bridge: b, Status: rec, Logger: quietLogger(), Timeout: 30 * time.Millisecond})
	b.answer = func() { d.OnResult(Payload{Data: json.RawMessage(`{"title":"Mug"}`)}) }

	if err := d.Dispatch(context.Background(), []byte{1}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if rec.Last() != "Analysis: Mug" {
		t.Errorf("status = %q", rec.Last())
	}
	for _, m := range rec.Messages() {
		if m == StatusTimedOut {
			t.Fatal("timeout fired after an answer delivered during send")
		}
	}
}

func TestSendErrorLeavesNoTimeout(t *testing.T) {
	rec := &status.Recorder{}
	d := New(Options{Bridge: &fakeBridge{err: errors.New("offline")}, Status: rec, Logger: quietLogger(), Timeout: 20 * time.Millisecond})

	if err := d.Dispatch(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected error")
	}
	time.Sleep(60 * time.Millisecond)
	if !strings.HasPrefix(rec.Last(), "Analysis failed:") {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestNewLeavesSubscriberUnset(t *testing.T) {
	bridge := NewOllamaBridge("http://127.0.0.1:1", "llava", time.Second, quietLogger())
	New(Options{Bridge: bridge, Status: &status.Recorder{}, Logger: quietLogger()})

	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if bridge.handler != nil {
		t.Error("New subscribed to the bridge; the caller owns routing")
	}
}

func TestOllamaBridge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "llava" || len(req.Images) != 1 || req.Stream || req.Prompt != Instruction {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Response: "```json\n{\"title\":\"Mug\",\"use\":\"drink\",\"description\":\"ceramic\"}\n```",
			Done:     true,
		})
	}))
	defer server.Close()

	rec := &status.Recorder{}
	bridge := NewOllamaBridge(server.URL, "llava", time.Second, quietLogger())
	d := New(Options{Bridge: bridge, Status: rec, Logger: quietLogger()})
	bridge.Subscribe(func(p Payload) { d.OnResult(p) })

	if err := d.Dispatch(context.Background(), []byte{0xff, 0xd8}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	bridge.Wait()
	if rec.Last() != "Analysis: Mug" {
		t.Errorf("status = %q", rec.Last())
	}
}

func TestOllamaBridgeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &status.Recorder{}
	bridge := NewOllamaBridge(server.URL, "llava", time.Second, quietLogger())
	d := New(Options{Bridge: bridge, Status: rec, Logger: quietLogger(), Timeout: 5 * time.Second})

	var mu sync.Mutex
	var got []Payload
	bridge.Subscribe(func(p Payload) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		d.OnResult(p)
	})

	if err := d.Dispatch(context.Background(), []byte{0xff, 0xd8}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	bridge.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Error == "" {
		t.Fatalf("handler payloads = %+v", got)
	}
	if !strings.HasPrefix(rec.Last(), "Analysis failed:") {
		t.Errorf("status = %q", rec.Last())
	}
	if bridge.IsAvailable(context.Background()) {
		t.Error("IsAvailable true for failing server")
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```\n{\"a\":1}```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWebSocketBridge(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if !req.UseLLM {
			t.Errorf("useLLM not set")
		}
		_ = conn.WriteJSON(map[string]any{"data": `{"title":"Mug"}`})
		// Plain text frames are treated as raw model output.
		_ = conn.WriteMessage(websocket.TextMessage, []byte("just words"))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	rec := &status.Recorder{}
	bridge := NewWebSocketBridge("ws"+strings.TrimPrefix(server.URL, "http"), quietLogger())
	defer bridge.Close()
	d := New(Options{Bridge: bridge, Status: rec, Logger: quietLogger()})
	bridge.Subscribe(func(p Payload) { d.OnResult(p) })

	if err := d.Dispatch(context.Background(), []byte{0xff}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitFor(t, func() bool { return rec.Last() == "LLM Text: just words..." })

	msgs := rec.Messages()
	if len(msgs) < 2 || msgs[len(msgs)-2] != "Analysis: Mug" {
		t.Errorf("status history = %v", msgs)
	}
}

func TestWebSocketBridgeDialFailure(t *testing.T) {
	bridge := NewWebSocketBridge("ws://127.0.0.1:1/bridge", quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bridge.Send(ctx, Request{}); err == nil {
		t.Fatal("expected dial error")
	}
}
