package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"classlock/pkg/types"
)

// Processor is the relay logic driven by the hub loop.
// Every call happens on the hub goroutine, one at a time.
type Processor interface {
	HandleEvent(ctx context.Context, connectionID string, env types.Envelope)
	HandleDisconnect(ctx context.Context, connectionID string)
}

// Hub serializes every relay mutation onto one goroutine
// ARCHITECTURAL DISCOVERY: Central coordination point for all message flow
// maintains clean separation between WebSocket handling and relay state
type Hub struct {
	// FUNCTIONAL DISCOVERY: Events and disconnects share one channel so a connection's
	// disconnect is never processed before the frames it sent earlier
	eventChannel    chan *EventContext
	queryChannel    chan *query
	shutdownChannel chan struct{}
	done            chan struct{}

	processor Processor
	logger    *slog.Logger

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running bool
	mu      sync.RWMutex
}

// EventContext wraps an inbound frame with its sender
type EventContext struct {
	ConnectionID string
	Envelope     types.Envelope
	Disconnect   bool
	ReceivedAt   time.Time
}

type query struct {
	fn   func()
	done chan struct{}
}

// NewHub creates a new hub; buffer sizes the inbound event channel
func NewHub(processor Processor, buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1000
	}
	return &Hub{
		eventChannel: make(chan *EventContext, buffer),
		queryChannel: make(chan *query),
		processor:    processor,
		logger:       logger.With("component", "hub"),
	}
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine prevents race conditions
// while maintaining high throughput message processing
func (h *Hub) Start(ctx context.Context) error {
	if h.processor == nil {
		return ErrNilProcessor
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.done = make(chan struct{})

	h.logger.Info("starting relay hub")
	go h.run(ctx, h.shutdownChannel, h.done)

	return nil
}

// Stop shuts the loop down and waits for the event in flight to finish
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	done := h.done
	h.mu.Unlock()

	h.logger.Info("stopping relay hub")
	<-done
	return nil
}

// Running reports whether the loop is accepting work
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Submit queues an inbound frame from a connection. It blocks while the queue is full.
func (h *Hub) Submit(ctx context.Context, connectionID string, env types.Envelope) error {
	return h.enqueue(ctx, &EventContext{
		ConnectionID: connectionID,
		Envelope:     env,
		ReceivedAt:   time.Now(),
	})
}

// Disconnect queues the end of a connection behind any frames it already submitted
func (h *Hub) Disconnect(ctx context.Context, connectionID string) error {
	return h.enqueue(ctx, &EventContext{
		ConnectionID: connectionID,
		Disconnect:   true,
		ReceivedAt:   time.Now(),
	})
}

// Query runs fn on the hub goroutine and waits for it to return.
// Used by read-only callers such as the admin API to observe a consistent snapshot.
func (h *Hub) Query(ctx context.Context, fn func()) error {
	shutdown, err := h.shutdownSignal()
	if err != nil {
		return err
	}

	q := &query{fn: fn, done: make(chan struct{})}
	select {
	case h.queryChannel <- q:
	case <-shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-q.done:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) enqueue(ctx context.Context, event *EventContext) error {
	shutdown, err := h.shutdownSignal()
	if err != nil {
		return err
	}

	select {
	case h.eventChannel <- event:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) shutdownSignal() (<-chan struct{}, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return nil, ErrHubNotRunning
	}
	return h.shutdownChannel, nil
}

// run is the main hub processing loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination
// preventing race conditions while maintaining high throughput
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer h.logger.Info("relay hub stopped")

	for {
		select {
		case event := <-h.eventChannel:
			h.dispatch(ctx, event)

		case q := <-h.queryChannel:
			q.fn()
			close(q.done)

		case <-shutdown:
			return

		case <-ctx.Done():
			h.mu.Lock()
			if h.running && h.shutdownChannel == shutdown {
				h.running = false
				close(h.shutdownChannel)
			}
			h.mu.Unlock()
			return
		}
	}
}

// dispatch hands one event to the processor
// TECHNICAL DISCOVERY: A panicking handler is logged and the loop keeps serving other connections
func (h *Hub) dispatch(ctx context.Context, event *EventContext) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("relay handler panicked",
				"connection_id", event.ConnectionID, "event", event.Envelope.Event, "panic", r)
		}
	}()

	if event.Disconnect {
		h.processor.HandleDisconnect(ctx, event.ConnectionID)
		return
	}
	h.processor.HandleEvent(ctx, event.ConnectionID, event.Envelope)
}
