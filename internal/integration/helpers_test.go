package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"medroom/internal/app"
	"medroom/internal/config"
	"medroom/pkg/types"
)

const waitTimeout = 5 * time.Second

const metricsReply = `{"vitals":{"LDL":{"value":190,"unit":"mg/dL","status":"high"}},
"diagnosis":{"primary":"Hyperlipidemia","confidence":80,"riskLevel":"high","summary":"Elevated LDL"},
"keyFindings":["LDL above target"],"recommendations":["Review statin therapy"]}`

// newModelServer speaks the chat completions API and answers by persona
func newModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		system := req.Messages[0].Content
		var reply string
		switch {
		case strings.Contains(system, "structured health data"):
			reply = metricsReply
		case strings.Contains(system, "triage"):
			reply = `{"level":"CRITICAL","reasoning":"Chest pain at rest","urgentAdvice":"Call emergency services now."}`
		case strings.Contains(system, "medical scribe"):
			reply = "SUBJECTIVE: chest pain. PLAN: urgent evaluation."
		case strings.Contains(system, "document analyst"):
			reply = "LDL is markedly elevated."
		default:
			reply = "Here is what I can tell you."
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test-model",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port
}

type testApp struct {
	app       *app.Application
	baseURL   string
	auditPath string
	stopped   bool
}

// startApp runs the whole application on a loopback port
func startApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	model := newModelServer(t)

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.HTTP.PublicURL = "http://clinic.test"
	cfg.Audit.Path = filepath.Join(dir, "audit.db")
	cfg.Upload.Dir = filepath.Join(dir, "uploads")
	cfg.AI.APIKey = "test-key"
	cfg.AI.BaseURL = model.URL + "/v1"
	cfg.AI.Timeout = 5 * time.Second

	application, err := app.NewApplication(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("failed to start application: %v", err)
	}

	ta := &testApp{
		app:       application,
		baseURL:   "http://" + application.Addr(),
		auditPath: cfg.Audit.Path,
	}
	t.Cleanup(func() { ta.stop(t) })
	return ta
}

func (ta *testApp) stop(t *testing.T) {
	t.Helper()
	if ta.stopped {
		return
	}
	ta.stopped = true
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ta.app.Stop(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

// TestClient is a browser stand-in speaking the event envelope
type TestClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	events []types.Envelope
	notify chan struct{}
	done   chan struct{}
}

// Dial opens a websocket to the application
func Dial(t *testing.T, baseURL string) *TestClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	client := &TestClient{
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go client.readLoop()
	t.Cleanup(client.Close)
	return client
}

func (c *TestClient) readLoop() {
	defer close(c.done)
	for {
		var envelope types.Envelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			return
		}
		c.mu.Lock()
		c.events = append(c.events, envelope)
		c.mu.Unlock()
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

// Close ends the connection and waits for the reader
func (c *TestClient) Close() {
	_ = c.conn.Close()
	<-c.done
}

// Send writes one client event
func (c *TestClient) Send(t *testing.T, eventType string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.conn.WriteJSON(types.Envelope{Type: eventType, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", eventType, err)
	}
}

// Events returns the payloads received so far for one event type
func (c *TestClient) Events(eventType string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e.Data)
		}
	}
	return out
}

// WaitFor blocks until an event of eventType satisfying match arrives
func (c *TestClient) WaitFor(t *testing.T, eventType string, match func(data json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		for _, data := range c.Events(eventType) {
			if match == nil || match(data) {
				return data
			}
		}
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
			return nil
		}
	}
}

// Messages decodes every chat-message and ai-message received
func (c *TestClient) Messages(t *testing.T) []types.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Message
	for _, e := range c.events {
		if e.Type != types.EventChatMessage && e.Type != types.EventAIMessage {
			continue
		}
		var msg types.Message
		if err := json.Unmarshal(e.Data, &msg); err != nil {
			t.Fatalf("decode %s: %v", e.Type, err)
		}
		out = append(out, msg)
	}
	return out
}

func messageContaining(text string) func(json.RawMessage) bool {
	return func(data json.RawMessage) bool {
		var msg types.Message
		return json.Unmarshal(data, &msg) == nil && strings.Contains(msg.Content, text)
	}
}

func (c *TestClient) join(t *testing.T, roomID, nickname string, role types.Role, email string) {
	t.Helper()
	c.Send(t, types.EventJoinRoom, types.JoinRequest{RoomID: roomID, Nickname: nickname, Role: role, Email: email})
	c.WaitFor(t, types.EventRoomHistory, nil)
}

