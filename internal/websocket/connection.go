package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classlock/pkg/types"
)

// ConnectionOptions tunes the outbound queue of a connection
type ConnectionOptions struct {
	BufferSize   int           // outbound frames queued before WriteJSON blocks
	WriteTimeout time.Duration // per-frame socket write deadline and enqueue timeout
}

// DefaultConnectionOptions matches the relay defaults
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{BufferSize: 100, WriteTimeout: 5 * time.Second}
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no relay logic in connection wrapper
type Connection struct {
	conn         *websocket.Conn
	id           string             // server-assigned, stable for the life of the socket
	writeCh      chan []byte        // FUNCTIONAL DISCOVERY: buffered so a burst of commands never blocks the relay loop
	writeTimeout time.Duration
	ctx          context.Context    // For cancellation
	cancel       context.CancelFunc // For cleanup
	closeOnce    sync.Once          // Ensure single close
}

// NewConnection wraps a gorilla connection and starts its single writer goroutine
func NewConnection(conn *websocket.Conn, opts ConnectionOptions) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		id:           uuid.New().String(),
		writeCh:      make(chan []byte, opts.BufferSize),
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the connection identifier
func (c *Connection) ID() string {
	return c.id
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
// TECHNICAL DISCOVERY: writeCh is never closed; senders select on ctx instead,
// so a late WriteJSON can never hit a closed channel
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

// WriteJSON queues a JSON value for delivery in call order
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

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

// Emit queues an event frame
func (c *Connection) Emit(event string, data interface{}) error {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return c.WriteJSON(env)
}

// ReadEnvelope blocks for the next text frame.
// A malformed frame returns ErrInvalidJSON and leaves the connection usable;
// any other error means the socket is gone.
func (c *Connection) ReadEnvelope() (types.Envelope, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return types.Envelope{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			return types.Envelope{}, ErrInvalidJSON
		}
		return env, nil
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
