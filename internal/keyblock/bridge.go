// Package keyblock carries the loopback control channel between a student window and the
// out-of-process keyboard helper: the bridge that sends BLOCK/UNBLOCK, the helper-side
// listener, and the launcher that starts the helper.
package keyblock

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Command is one of the two words understood by the helper
type Command string

const (
	Block   Command = "BLOCK"
	Unblock Command = "UNBLOCK"
)

const (
	// DefaultAddr is the fixed loopback endpoint of the helper
	DefaultAddr = "127.0.0.1:6741"
	// DefaultTimeout bounds a single delivery attempt
	DefaultTimeout = 2 * time.Second
)

// ParseCommand maps wire text to a Command
func ParseCommand(s string) (Command, error) {
	switch Command(s) {
	case Block, Unblock:
		return Command(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Bridge delivers helper commands without holding a connection open.
// ARCHITECTURAL DISCOVERY: Send never blocks the caller's transition. One worker drains a
// single pending slot, so the helper hears commands in issue order and a command queued behind
// an in-flight attempt is replaced by any newer one.
type Bridge struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	pending  Command
	queued   bool
	draining bool
	wg       sync.WaitGroup
}

// NewBridge returns a bridge for addr; empty addr and non-positive timeout take the defaults
func NewBridge(addr string, timeout time.Duration, logger *slog.Logger) *Bridge {
	if addr == "" {
		addr = DefaultAddr
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		addr:    addr,
		timeout: timeout,
		logger:  logger.With("component", "keyblock_bridge", "helper_addr", addr),
	}
}

// Send queues cmd for the helper and returns immediately. Failures are logged only.
func (b *Bridge) Send(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queued {
		b.logger.Debug("helper command superseded", "dropped", string(b.pending), "command", string(cmd))
	}
	b.pending = cmd
	b.queued = true
	if !b.draining {
		b.draining = true
		b.wg.Add(1)
		go b.drain()
	}
}

// Wait blocks until every command sent so far has been attempted or superseded
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) drain() {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		if !b.queued {
			b.draining = false
			b.mu.Unlock()
			return
		}
		cmd := b.pending
		b.queued = false
		b.mu.Unlock()

		if err := b.deliver(cmd); err != nil {
			b.logger.Warn("helper command not delivered", "command", string(cmd), "error", err)
			continue
		}
		b.logger.Debug("helper command delivered", "command", string(cmd))
	}
}

// TECHNICAL DISCOVERY: Dial and write share one deadline so a helper that accepts
// but never reads cannot stall the attempt past the timeout
func (b *Bridge) deliver(cmd Command) error {
	deadline := time.Now().Add(b.timeout)

	conn, err := net.DialTimeout("tcp", b.addr, b.timeout)
	if err != nil {
		return fmt.Errorf("dial helper: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("write %s: %w", cmd, err)
	}
	return nil
}
