package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/brickhost/internal/events"
	"github.com/mattjoyce/brickhost/internal/log"
)

type published struct {
	eventType string
	args      []any
}

// recordingBus records Publish calls.
type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(eventType string, args ...any) events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{eventType: eventType, args: args})
	return events.Event{ID: int64(len(b.events)), Type: eventType, Args: args}
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func testLogger() *slog.Logger {
	return log.Discard()
}

func testConfig(secret string) Config {
	return Config{
		Listen: "127.0.0.1:0",
		Endpoints: []EndpointConfig{
			{
				Path:            "/hooks/console",
				Secret:          secret,
				SignatureHeader: "X-Brickhost-Signature",
				EventPrefix:     "console.",
				MaxBodySize:     1024,
			},
		},
	}
}

func post(server *Server, path string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Brickhost-Signature", signature)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook_PublishesEvent(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"type":"join","args":[{"name":"alice","id":"a-1"},3]}`)
	bus := &recordingBus{}
	server := New(testConfig(secret), bus, testLogger())

	rec := post(server, "/hooks/console", body, Sign(body, secret))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp AcceptedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != 1 || resp.Type != "console.join" {
		t.Errorf("response = %+v, want id 1 type console.join", resp)
	}

	if bus.count() != 1 {
		t.Fatalf("published %d events, want 1", bus.count())
	}
	ev := bus.events[0]
	if ev.eventType != "console.join" {
		t.Errorf("event type = %q, want console.join", ev.eventType)
	}
	encoded, err := json.Marshal(ev.args)
	if err != nil {
		t.Fatalf("args not encodable: %v", err)
	}
	if string(encoded) != `[{"name":"alice","id":"a-1"},3]` {
		t.Errorf("args = %s, want forwarded unchanged", encoded)
	}
}

func TestHandleWebhook_Rejections(t *testing.T) {
	secret := "test-secret"
	valid := []byte(`{"type":"leave","args":["alice"]}`)

	tests := []struct {
		name      string
		path      string
		body      []byte
		signature string
		want      int
	}{
		{"invalid signature", "/hooks/console", valid, Sign(valid, "wrong-secret"), http.StatusForbidden},
		{"missing signature", "/hooks/console", valid, "", http.StatusForbidden},
		{"body too large", "/hooks/console", bytes.Repeat([]byte("x"), 2048), "sha256=00", http.StatusRequestEntityTooLarge},
		{"unknown path", "/hooks/other", valid, Sign(valid, secret), http.StatusNotFound},
		{"not json", "/hooks/console", []byte(`hello`), Sign([]byte(`hello`), secret), http.StatusBadRequest},
		{"array body", "/hooks/console", []byte(`["join"]`), Sign([]byte(`["join"]`), secret), http.StatusBadRequest},
		{"missing type", "/hooks/console", []byte(`{"args":[]}`), Sign([]byte(`{"args":[]}`), secret), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &recordingBus{}
			server := New(testConfig(secret), bus, testLogger())

			rec := post(server, tt.path, tt.body, tt.signature)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if bus.count() != 0 {
				t.Errorf("published %d events, want 0", bus.count())
			}
			if rec.Code == http.StatusForbidden && !strings.Contains(rec.Body.String(), `"forbidden"`) {
				t.Errorf("403 body should be generic, got %s", rec.Body.String())
			}
		})
	}
}

func TestHandleWebhook_NoArgs(t *testing.T) {
	secret := "s"
	body := []byte(`{"type":"mapchange"}`)
	bus := &recordingBus{}
	server := New(testConfig(secret), bus, testLogger())

	rec := post(server, "/hooks/console", body, Sign(body, secret))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(bus.events[0].args) != 0 {
		t.Errorf("args = %v, want empty", bus.events[0].args)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	server := New(Config{Endpoints: []EndpointConfig{{Path: "/hooks/a", Secret: "x"}}}, &recordingBus{}, testLogger())

	ep := server.endpoints["/hooks/a"]
	if ep == nil {
		t.Fatal("endpoint not registered")
	}
	if ep.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want %d", ep.MaxBodySize, DefaultMaxBodySize)
	}
	if ep.SignatureHeader != DefaultSignatureHeader {
		t.Errorf("SignatureHeader = %q, want %q", ep.SignatureHeader, DefaultSignatureHeader)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	secret := "test-secret"
	bus := events.NewHub(8)
	server := New(testConfig(secret), bus, testLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	body := []byte(`{"type":"chat","args":["alice","hi"]}`)
	req, _ := http.NewRequest("POST", "http://"+ln.Addr().String()+"/hooks/console", bytes.NewReader(body))
	req.Header.Set("X-Brickhost-Signature", Sign(body, secret))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	snapshot := bus.SnapshotSince(0)
	if len(snapshot) != 1 || snapshot[0].Type != "console.chat" {
		t.Fatalf("bus snapshot = %+v", snapshot)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestFromGlobalConfigNil(t *testing.T) {
	if _, err := FromGlobalConfig(nil); err == nil {
		t.Error("nil config should fail")
	}
}
