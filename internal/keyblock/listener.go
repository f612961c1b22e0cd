package keyblock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Hook is the OS-level keyboard filter driven by the listener
type Hook interface {
	Block() error
	Unblock() error
}

// LogHook only records the requested state; used where no OS filter is installed
type LogHook struct {
	Logger *slog.Logger
}

func (h LogHook) Block() error {
	h.Logger.Info("keyboard suppression engaged")
	return nil
}

func (h LogHook) Unblock() error {
	h.Logger.Info("keyboard suppression released")
	return nil
}

// maxFrame is larger than any valid command; anything longer is not a command
const maxFrame = 64

// Listener is the helper side of the control channel: one command per connection, no reply
type Listener struct {
	addr    string
	hook    Hook
	logger  *slog.Logger
	mu      sync.Mutex
	ln      net.Listener
	blocked bool
}

// NewListener prepares a listener on addr (DefaultAddr when empty)
func NewListener(addr string, hook Hook, logger *slog.Logger) *Listener {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Listener{
		addr:   addr,
		hook:   hook,
		logger: logger.With("component", "keyblock_listener"),
	}
}

// Listen binds the socket. Separate from Serve so callers learn the bound address first.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return ErrListenerRunning
	}
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln
	l.logger.Info("helper listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Listen
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.addr
}

// Blocked reports the last state applied to the hook
func (l *Listener) Blocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocked
}

// Serve accepts connections until ctx is cancelled or Close is called.
// FUNCTIONAL DISCOVERY: Connections are handled one at a time in accept order, so the hook sees
// commands in the order the bridge sent them.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return ErrListenerNotBound
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	buf, err := io.ReadAll(io.LimitReader(conn, maxFrame))
	if err != nil && len(buf) == 0 {
		l.logger.Debug("helper read failed", "error", err)
		return
	}

	cmd, err := ParseCommand(strings.TrimSpace(string(buf)))
	if err != nil {
		l.logger.Warn("ignoring helper frame", "error", err)
		return
	}
	l.apply(cmd)
}

// FUNCTIONAL DISCOVERY: Commands are idempotent; a repeated BLOCK re-arms the hook harmlessly
func (l *Listener) apply(cmd Command) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	switch cmd {
	case Block:
		err = l.hook.Block()
		l.blocked = true
	case Unblock:
		err = l.hook.Unblock()
		l.blocked = false
	}
	if err != nil {
		l.logger.Error("keyboard hook failed", "command", string(cmd), "error", err)
	}
}

// Close stops accepting connections
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
