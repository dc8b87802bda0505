package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"medroom/pkg/types"
)

// Options tunes a connection's outbound queue
type Options struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// DefaultOptions matches the default WebSocket configuration section
func DefaultOptions() Options {
	return Options{BufferSize: 100, WriteTimeout: 10 * time.Second}
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	conn         *websocket.Conn
	id           string
	writeCh      chan []byte // FUNCTIONAL DISCOVERY: buffered so a slow client never stalls the hub
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once

	mu      sync.RWMutex // protects binding
	binding types.Binding
	bound   bool
}

// NewConnection wraps an upgraded socket and starts its writer
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions().WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		id:           uuid.NewString(),
		writeCh:      make(chan []byte, opts.BufferSize),
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()
	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the server-assigned connection identifier
func (c *Connection) ID() string {
	return c.id
}

// Done is closed when the connection shuts down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// WriteJSON queues an event for the writer goroutine
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	// TECHNICAL DISCOVERY: Bounded wait; a client that cannot drain its queue
	// within the write timeout is treated as gone
	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()
	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Bind records the room binding created by a join
func (c *Connection) Bind(binding types.Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	binding.ConnectionID = c.id
	c.binding = binding
	c.bound = true
}

// Unbind clears the room binding
func (c *Connection) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binding = types.Binding{}
	c.bound = false
}

// Binding returns the current room binding, if any
func (c *Connection) Binding() (types.Binding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.binding, c.bound
}
