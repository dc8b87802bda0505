package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"medroom/internal/session"
	"medroom/internal/websocket"
	"medroom/pkg/types"
)

// recordingConn is an in-memory interfaces.Connection that keeps every event
type recordingConn struct {
	id      string
	mu      sync.Mutex
	binding types.Binding
	bound   bool
	events  []types.Event
}

func (c *recordingConn) ID() string   { return c.id }
func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v.(types.Event))
	return nil
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
	c.bound = false
	c.binding = types.Binding{}
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

// messages returns every logged message delivered to the connection
func (c *recordingConn) messages() []types.Message {
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

// syncRunner applies async work inline
type syncRunner struct{}

func (syncRunner) Go(work func(ctx context.Context) func()) {
	if apply := work(context.Background()); apply != nil {
		apply()
	}
}

// queuedRunner holds work until flushed
type queuedRunner struct {
	pending []func(ctx context.Context) func()
}

func (q *queuedRunner) Go(work func(ctx context.Context) func()) {
	q.pending = append(q.pending, work)
}

func (q *queuedRunner) flush() {
	for _, work := range q.pending {
		if apply := work(context.Background()); apply != nil {
			apply()
		}
	}
	q.pending = nil
}

type fakeResponder struct {
	reply     string
	questions []types.Message
	roles     []types.Role
}

func (f *fakeResponder) Reply(ctx context.Context, room *types.Room, role types.Role, question types.Message) string {
	f.questions = append(f.questions, question)
	f.roles = append(f.roles, role)
	return f.reply
}

type fakeDetector struct {
	keywords   []string
	assessment types.EmergencyAssessment
	classified int
}

func (f *fakeDetector) Scan(text string) []string { return f.keywords }

func (f *fakeDetector) Classify(ctx context.Context, text string, keywords []string) types.EmergencyAssessment {
	f.classified++
	a := f.assessment
	a.Keywords = keywords
	return a
}

type fixture struct {
	store     *session.Store
	registry  *websocket.Registry
	router    *Router
	responder *fakeResponder
	detector  *fakeDetector
}

func newFixture(t *testing.T, runner Runner) *fixture {
	t.Helper()
	store := session.NewStore(nil, zerolog.Nop())
	registry := websocket.NewRegistry()
	responder := &fakeResponder{reply: "Rest and hydrate."}
	detector := &fakeDetector{}
	delivery := NewDelivery(registry, zerolog.Nop())
	return &fixture{
		store:     store,
		registry:  registry,
		router:    NewRouter(store, delivery, runner, responder, detector, zerolog.Nop()),
		responder: responder,
		detector:  detector,
	}
}

// join registers a connection and binds it to a room with a role
func (f *fixture) join(t *testing.T, id, roomID string, role types.Role) *recordingConn {
	t.Helper()
	f.store.EnsureRoom(roomID)
	conn := &recordingConn{id: id}
	if err := f.registry.Register(conn); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.BindRoom(conn, types.Binding{RoomID: roomID, Nickname: id, Role: role}); err != nil {
		t.Fatal(err)
	}
	return conn
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
