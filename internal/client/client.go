// Package client speaks the relay protocol from the teacher or student side.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"

	"classlock/internal/websocket"
	"classlock/pkg/types"
)

// Client is one relay connection.
// ARCHITECTURAL DISCOVERY: Reuses the relay's connection wrapper so client writes get the same
// single-writer ordering as server writes
type Client struct {
	conn    *websocket.Connection
	events  chan types.Envelope
	logger  *slog.Logger
	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan json.RawMessage
	done    chan struct{}
	err     error
}

// Options tunes a dialed client
type Options struct {
	HandshakeTimeout time.Duration
	EventBuffer      int
	Connection       websocket.ConnectionOptions
}

// DefaultOptions returns the options Dial uses when none are given
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		EventBuffer:      64,
		Connection:       websocket.DefaultConnectionOptions(),
	}
}

// Dial connects to the relay WebSocket endpoint at url (ws://host:port/ws)
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	return DialWithOptions(ctx, url, DefaultOptions(), logger)
}

// DialWithOptions is Dial with explicit options
func DialWithOptions(ctx context.Context, url string, opts Options, logger *slog.Logger) (*Client, error) {
	if url == "" {
		return nil, ErrEmptyRelay
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultOptions().EventBuffer
	}

	dialer := gws.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Client{
		conn:    websocket.NewConnection(conn, opts.Connection),
		events:  make(chan types.Envelope, opts.EventBuffer),
		logger:  logger.With("component", "relay_client"),
		pending: make(map[int64]chan json.RawMessage),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers every non-ack frame in arrival order; closed when the connection ends
func (c *Client) Events() <-chan types.Envelope {
	return c.events
}

// Done is closed when the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, nil while it is open
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Emit sends a fire-and-forget event
func (c *Client) Emit(event string, data interface{}) error {
	if err := c.conn.Emit(event, data); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Request sends an event carrying a fresh id and waits for the matching ack result
func (c *Client) Request(ctx context.Context, event string, data interface{}) (json.RawMessage, error) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return nil, err
	}
	id := c.nextID.Add(1)
	env.ID = &id

	reply := make(chan json.RawMessage, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.WriteJSON(env); err != nil {
		return nil, fmt.Errorf("request %s: %w", event, err)
	}

	select {
	case result := <-reply:
		return result, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ValidateClassCode asks the relay whether code names a live class
func (c *Client) ValidateClassCode(ctx context.Context, code string) (bool, error) {
	result, err := c.Request(ctx, types.EventValidateClassCode, code)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(result, &ok); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidAck, err)
	}
	return ok, nil
}

// Close ends the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		env, err := c.conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, websocket.ErrInvalidJSON) {
				c.logger.Debug("ignoring malformed frame")
				continue
			}
			c.finish(err)
			return
		}

		if env.Event == types.EventAck {
			c.resolve(env)
			continue
		}

		select {
		case c.events <- env:
		case <-c.conn.Done():
			c.finish(ErrClosed)
			return
		}
	}
}

func (c *Client) resolve(env types.Envelope) {
	var ack struct {
		ID     int64           `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := env.Decode(&ack); err != nil {
		c.logger.Warn("dropping malformed ack", "error", err)
		return
	}

	c.mu.Lock()
	reply, ok := c.pending[ack.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("ack for unknown request", "id", ack.ID)
		return
	}
	select {
	case reply <- ack.Result:
	default:
		c.logger.Debug("duplicate ack", "id", ack.ID)
	}
}

func (c *Client) finish(err error) {
	_ = c.conn.Close()
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	close(c.done)
}
