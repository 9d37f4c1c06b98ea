package ctl

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/large-farva/precision-lens/internal/capture"
)

func TestPostCommandDecodesErrorReplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(CommandResult{Error: "camera not active", Status: "Launch camera first!"})
	}))
	defer srv.Close()

	res, err := postCommand(srv.URL+"/", "/api/capture", nil)
	if err != nil {
		t.Fatalf("postCommand: %v", err)
	}
	if res.OK || res.Status != "Launch camera first!" {
		t.Errorf("result = %+v", res)
	}
}

func TestPostCommandPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if _, err := postCommand(srv.URL, "/api/capture", nil); err == nil {
		t.Fatal("expected an error for a non-JSON reply")
	}
}

func TestResultSendsStringOrRaw(t *testing.T) {
	var bodies []map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/result" {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		var m map[string]json.RawMessage
		_ = json.Unmarshal(b, &m)
		bodies = append(bodies, m)
		_ = json.NewEncoder(w).Encode(CommandResult{OK: true, Status: "Analysis Complete!"})
	}))
	defer srv.Close()

	if err := Result(srv.URL, ResultOptions{Text: `{"title":"Mug"}`, JSON: true}); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if err := Result(srv.URL, ResultOptions{Text: `{"title":"Mug"}`, Raw: true, JSON: true}); err != nil {
		t.Fatalf("Result raw: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("requests = %d", len(bodies))
	}
	if got := string(bodies[0]["data"]); got != `"{\"title\":\"Mug\"}"` {
		t.Errorf("string data = %s", got)
	}
	if got := string(bodies[1]["data"]); got != `{"title":"Mug"}` {
		t.Errorf("raw data = %s", got)
	}
}

func TestLastCaptureWritesJPEG(t *testing.T) {
	jpegBytes := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"image": capture.DataURL(jpegBytes),
			"meta":  capture.Meta{ID: "abc", Facing: "environment", Zoom: 1.5},
		})
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "shot.jpg")
	if err := LastCapture(srv.URL, LastCaptureOptions{Out: out, JSON: true}); err != nil {
		t.Fatalf("LastCapture: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, jpegBytes) {
		t.Errorf("written bytes = %x", got)
	}
}

func TestLastCaptureMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no capture stored"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	if err := LastCapture(srv.URL, LastCaptureOptions{}); err == nil {
		t.Fatal("expected an error when nothing is stored")
	}
}

func TestStatusColorMatchesPrefixes(t *testing.T) {
	// Not a terminal under go test, so every status renders uncoloured.
	for _, s := range []string{"Camera Error: NotFoundError. Tap Start to try again.", "Captured!", "Not Active"} {
		if c := statusColor(s); c != "" {
			t.Errorf("statusColor(%q) = %q without a terminal", s, c)
		}
	}
}

func TestRenderEventHandlesEveryType(t *testing.T) {
	events := []string{
		`{"type":"heartbeat","ts":"2026-01-02T03:04:05Z","status":"Not Active","camera_active":true,"facing":"user","zoom":1.4,"uptime_seconds":90}`,
		`{"type":"status","to":"Captured!"}`,
		`{"type":"log","level":"warn","component":"demo","message":"hi"}`,
		`{"type":"feedback","kind":"flash","on":true}`,
		`{"type":"capture","id":"x","bytes":2048,"facing":"environment","zoom":2}`,
		`{"type":"review","image":"data:image/jpeg;base64,AA=="}`,
		`{"type":"analysis","title":"Mug","use":"Drinking","description":"White"}`,
		`{"type":"analysis","text":"LLM Text: abc..."}`,
		`{"type":"mystery","x":1}`,
		`not json`,
	}
	for _, ev := range events {
		renderEvent([]byte(ev))
	}
}

func TestWSEndpoint(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/ws", false},
		{"https://lens.local/", "wss://lens.local/ws", false},
		{"http://host:8080/api?x=1", "ws://host:8080/ws", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := wsEndpoint(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("wsEndpoint(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestEventFilter(t *testing.T) {
	all := eventFilter(nil)
	if !all([]byte(`{"type":"heartbeat"}`)) {
		t.Error("empty filter should pass everything")
	}

	keep := eventFilter([]string{"status", " analysis"})
	cases := map[string]bool{
		`{"type":"status","to":"x"}`: true,
		`{"type":"analysis"}`:        true,
		`{"type":"heartbeat"}`:       false,
		`garbage`:                    true,
	}
	for msg, want := range cases {
		if got := keep([]byte(msg)); got != want {
			t.Errorf("keep(%s) = %v, want %v", msg, got, want)
		}
	}
}

func TestFetchHealthDecodesUnhealthyChecks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			// Without the header only the bare liveness reply comes back.
			_, _ = w.Write([]byte("ok\n"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"healthy": false,
			"checks": map[string]any{
				"data_dir": map[string]any{"ok": true, "path": "/tmp/lens"},
				"storage":  map[string]any{"ok": false, "backend": "redis", "error": "connection refused"},
			},
		})
	}))
	defer srv.Close()

	status, rep, err := fetchHealth(srv.URL + "/")
	if err != nil {
		t.Fatalf("fetchHealth: %v", err)
	}
	if status != http.StatusServiceUnavailable || rep.Healthy {
		t.Fatalf("status = %d, healthy = %v", status, rep.Healthy)
	}
	if ok, _ := rep.Checks["storage"]["ok"].(bool); ok {
		t.Error("storage check should be failing")
	}

	lines := checkLines(rep.Checks)
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], "data_dir") || !strings.Contains(lines[0], "/tmp/lens") {
		t.Errorf("data_dir line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "FAIL") || !strings.Contains(lines[1], "connection refused") {
		t.Errorf("storage line = %q", lines[1])
	}

	if err := Health(srv.URL, true); err != nil {
		t.Errorf("Health on an unhealthy daemon should still report, got %v", err)
	}
}

func TestFetchHealthUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, _, err := fetchHealth(url); err == nil {
		t.Fatal("expected an error for a closed server")
	}
}
