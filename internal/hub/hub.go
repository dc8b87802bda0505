package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"medroom/internal/analysis"
	"medroom/internal/router"
	"medroom/internal/session"
	"medroom/internal/websocket"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// Documenter writes the doctor's consultation note
type Documenter interface {
	Documentation(ctx context.Context, room *types.Room) string
}

// Analyzer runs the document analysis pipeline
type Analyzer interface {
	Analyze(ctx context.Context, file *types.UploadedFile, prior []*types.UploadedFile) analysis.Result
}

// Dependencies are the collaborators the hub coordinates
type Dependencies struct {
	Registry   *websocket.Registry
	Store      *session.Store
	Responder  router.Responder
	Documenter Documenter
	Detector   router.EmergencyDetector
	Analyzer   Analyzer
	Extractor  interfaces.ContentExtractor
}

// Options tune the loop
type Options struct {
	// TaskBuffer bounds queued work before submitters block
	TaskBuffer int
	// AsyncTimeout bounds each off-loop job (model calls, extraction)
	AsyncTimeout time.Duration
}

// DefaultOptions returns a 1000-task buffer and a 2 minute job timeout
func DefaultOptions() Options {
	return Options{TaskBuffer: 1000, AsyncTimeout: 2 * time.Minute}
}

type videoPeer struct {
	roomID string
	peerID string
}

// Hub is the single owner of room mutations.
// ARCHITECTURAL DISCOVERY: Every WebSocket event, async completion and room
// deletion runs as a task on one goroutine, so handlers never interleave
// between reading and writing room state
type Hub struct {
	tasks    chan func()
	shutdown chan struct{}
	done     chan struct{}

	registry   *websocket.Registry
	store      *session.Store
	delivery   *router.Delivery
	router     *router.Router
	documenter Documenter
	analyzer   Analyzer
	extractor  interfaces.ContentExtractor

	// loop-owned
	videoPeers map[string]videoPeer

	options Options
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	running bool
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// NewHub wires the router and delivery over the registry
func NewHub(deps Dependencies, options Options, logger zerolog.Logger) *Hub {
	if options.TaskBuffer <= 0 {
		options.TaskBuffer = DefaultOptions().TaskBuffer
	}
	if options.AsyncTimeout <= 0 {
		options.AsyncTimeout = DefaultOptions().AsyncTimeout
	}

	h := &Hub{
		tasks:      make(chan func(), options.TaskBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		registry:   deps.Registry,
		store:      deps.Store,
		documenter: deps.Documenter,
		analyzer:   deps.Analyzer,
		extractor:  deps.Extractor,
		videoPeers: make(map[string]videoPeer),
		options:    options,
		ctx:        context.Background(),
		logger:     logger.With().Str("component", "hub").Logger(),
	}
	h.delivery = router.NewDelivery(deps.Registry, logger)
	h.router = router.NewRouter(deps.Store, h.delivery, h, deps.Responder, deps.Detector, logger)
	return h
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true

	h.logger.Info().Int("task_buffer", h.options.TaskBuffer).Msg("hub started")
	go h.run()
	return nil
}

// Stop ends the loop, cancels in-flight jobs and waits for them to return.
// Completions arriving after Stop are dropped
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.cancel()
	close(h.shutdown)
	h.mu.Unlock()

	<-h.done
	h.workers.Wait()
	h.logger.Info().Msg("hub stopped")
	return nil
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case task := <-h.tasks:
			h.execute(task)
		case <-h.shutdown:
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// execute runs one task; a panicking handler must not take the loop down
func (h *Hub) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Msg("hub task panicked")
		}
	}()
	task()
}

// Submit queues a task for the loop, blocking while the queue is full
func (h *Hub) Submit(task func()) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.tasks <- task:
		return nil
	case <-h.done:
		return ErrHubNotRunning
	}
}

// Call runs fn on the loop and waits for its result. Must not be called from the loop
func (h *Hub) Call(fn func() error) error {
	result := make(chan error, 1)
	if err := h.Submit(func() { result <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-h.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrHubNotRunning
		}
	}
}

// Go runs work off the loop with a timeout and applies its result on the loop.
// TECHNICAL DISCOVERY: The apply closure is queued like any other task, so a
// completion always observes the room as it is now, not as it was at submit
func (h *Hub) Go(work func(ctx context.Context) func()) {
	// Add under the lock Stop takes before Wait: counted or never started
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return
	}
	base := h.ctx
	h.workers.Add(1)
	h.mu.RUnlock()

	go func() {
		defer h.workers.Done()
		ctx, cancel := context.WithTimeout(base, h.options.AsyncTimeout)
		defer cancel()

		apply := work(ctx)
		if apply == nil {
			return
		}
		if err := h.Submit(apply); err != nil {
			h.logger.Debug().Err(err).Msg("completion dropped")
		}
	}()
}

// Dispatch implements websocket.Dispatcher
func (h *Hub) Dispatch(conn interfaces.Connection, envelope types.Envelope) {
	if err := h.Submit(func() { h.handleEvent(conn, envelope) }); err != nil {
		h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Str("event", envelope.Type).Msg("event dropped")
	}
}

// Disconnect implements websocket.Dispatcher
func (h *Hub) Disconnect(conn interfaces.Connection) {
	if err := h.Submit(func() { h.handleDisconnect(conn) }); err != nil {
		h.registry.Unregister(conn)
	}
}

// GetStats reports loop and worker state
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	return map[string]interface{}{
		"running":      running,
		"queued_tasks": len(h.tasks),
	}
}
