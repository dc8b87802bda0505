package hub

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"medroom/internal/analysis"
	"medroom/internal/assistant"
	"medroom/internal/emergency"
	"medroom/internal/extract"
	"medroom/internal/router"
	"medroom/internal/session"
	"medroom/internal/websocket"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

const metricsJSON = `{"vitals":{"LDL":{"value":190,"unit":"mg/dL","status":"high"}},
"diagnosis":{"primary":"Hyperlipidemia","confidence":80,"riskLevel":"high","summary":"Elevated LDL"},
"keyFindings":[],"recommendations":["Statin therapy review"]}`

// scriptModel answers each collaborator by the persona it was given
type scriptModel struct {
	mu          sync.Mutex
	failMetrics bool
	calls       int
}

func (m *scriptModel) Complete(ctx context.Context, segments []interfaces.PromptSegment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	system := segments[0].Content
	switch {
	case strings.Contains(system, "structured health data"):
		if m.failMetrics {
			return "no data", nil
		}
		return metricsJSON, nil
	case strings.Contains(system, "triage"):
		return `{"level":"HIGH","reasoning":"Possible cardiac event","urgentAdvice":"Call emergency services now."}`, nil
	case strings.Contains(system, "medical scribe"):
		return "Consultation note", nil
	case strings.Contains(system, "document analyst"):
		return "LDL is markedly elevated", nil
	default:
		return "assistant reply", nil
	}
}

func (m *scriptModel) setFailMetrics(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMetrics = fail
}

func (m *scriptModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingConn keeps every event and flags any role-scoped payload that
// reaches a connection bound with a different role
type recordingConn struct {
	id         string
	mu         sync.Mutex
	binding    types.Binding
	bound      bool
	events     []types.Event
	violations []string
}

func (c *recordingConn) ID() string   { return c.id }
func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) WriteJSON(v interface{}) error {
	event := v.(types.Event)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound {
		c.checkLocked(event)
	}
	c.events = append(c.events, event)
	return nil
}

func (c *recordingConn) checkLocked(event types.Event) {
	role := c.binding.Role
	switch data := event.Data.(type) {
	case types.Message:
		if !types.Visible(data, role) {
			c.violations = append(c.violations, event.Type+" seq leaked to "+string(role))
		}
	case RoomHistory:
		for _, msg := range data.Messages {
			if !types.Visible(msg, role) {
				c.violations = append(c.violations, "history leaked to "+string(role))
			}
		}
		if role != types.RoleDoctor && data.HealthMetrics != nil {
			c.violations = append(c.violations, "metrics in patient history")
		}
	case router.EmergencyAlert, MetricsUpdate:
		if role != types.RoleDoctor {
			c.violations = append(c.violations, event.Type+" sent to "+string(role))
		}
	}
}

func (c *recordingConn) Bind(binding types.Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	binding.ConnectionID = c.id
	c.binding = binding
	c.bound = true
}

func (c *recordingConn) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binding = types.Binding{}
	c.bound = false
}

func (c *recordingConn) Binding() (types.Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding, c.bound
}

func (c *recordingConn) eventsOf(eventType string) []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// liveMessages returns the log messages pushed to the connection, in order
func (c *recordingConn) liveMessages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Message
	for _, e := range c.events {
		if msg, ok := e.Data.(types.Message); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (c *recordingConn) lastHistory(t *testing.T) RoomHistory {
	t.Helper()
	events := c.eventsOf(types.EventRoomHistory)
	if len(events) == 0 {
		t.Fatalf("%s received no room-history", c.id)
	}
	return events[len(events)-1].Data.(RoomHistory)
}

func (c *recordingConn) lastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == types.EventError {
			return c.events[i].Data.(map[string]string)["message"]
		}
	}
	return ""
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type testEnv struct {
	hub      *Hub
	store    *session.Store
	registry *websocket.Registry
	model    *scriptModel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	model := &scriptModel{}
	store := session.NewStore(nil, logger)
	registry := websocket.NewRegistry()
	engine := assistant.NewEngine(model, logger)

	h := NewHub(Dependencies{
		Registry:   registry,
		Store:      store,
		Responder:  engine,
		Documenter: engine,
		Detector:   emergency.NewDetector(model, logger),
		Analyzer:   analysis.NewPipeline(model, logger),
		Extractor:  extract.NewExtractor(nil, logger),
	}, DefaultOptions(), logger)

	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Stop() })
	return &testEnv{hub: h, store: store, registry: registry, model: model}
}

// flush waits until every task queued so far has run
func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	if err := e.hub.Call(func() error { return nil }); err != nil {
		t.Fatal(err)
	}
}

// settle waits for queued tasks, their async jobs, and the jobs' completions
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	e.flush(t)
	e.hub.workers.Wait()
	e.flush(t)
}

func (e *testEnv) connect(t *testing.T, id string) *recordingConn {
	t.Helper()
	conn := &recordingConn{id: id}
	if err := e.registry.Register(conn); err != nil {
		t.Fatal(err)
	}
	return conn
}

func (e *testEnv) send(t *testing.T, conn *recordingConn, eventType string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	e.hub.Dispatch(conn, types.Envelope{Type: eventType, Data: raw})
}

func (e *testEnv) join(t *testing.T, conn *recordingConn, roomID, nickname string, role types.Role, email string) {
	t.Helper()
	e.send(t, conn, types.EventJoinRoom, types.JoinRequest{RoomID: roomID, Nickname: nickname, Role: role, Email: email})
	e.flush(t)
}

func (e *testEnv) chat(t *testing.T, conn *recordingConn, text string) {
	t.Helper()
	e.send(t, conn, types.EventChatMessage, types.ChatRequest{Text: text})
	e.settle(t)
}

// upload writes content to disk and records it as uploaded
func (e *testEnv) upload(t *testing.T, roomID, name, content string, role types.Role) *types.UploadedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	file := &types.UploadedFile{
		ID:           "file-" + name,
		Name:         name,
		StoragePath:  path,
		MimeType:     "text/plain",
		Size:         int64(len(content)),
		UploadedBy:   "uploader",
		UploaderRole: role,
	}
	if err := e.hub.AddUpload(roomID, file); err != nil {
		t.Fatal(err)
	}
	e.settle(t)
	return file
}

func seqs(messages []types.Message) []uint64 {
	out := make([]uint64, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Seq)
	}
	return out
}
