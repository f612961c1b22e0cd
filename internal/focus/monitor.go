// Package focus collapses raw host window signals into a two-state focus machine.
package focus

import (
	"errors"
	"fmt"
	"sync"
)

// Signal is a raw window event reported by the host
type Signal string

const (
	SignalBlur     Signal = "blur"
	SignalMinimize Signal = "minimize"
	SignalHide     Signal = "hide"
	SignalFocus    Signal = "focus"
	SignalRestore  Signal = "restore"
	SignalShow     Signal = "show"
)

// Event is a logical focus transition surfaced to the UI
type Event string

const (
	EventFocusLost     Event = "focus-lost"
	EventFocusRegained Event = "focus-regained"
)

// ErrUnknownSignal is returned by ParseSignal
var ErrUnknownSignal = errors.New("unknown window signal")

// ParseSignal maps a host event name to a Signal
func ParseSignal(s string) (Signal, error) {
	switch sig := Signal(s); sig {
	case SignalBlur, SignalMinimize, SignalHide, SignalFocus, SignalRestore, SignalShow:
		return sig, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSignal, s)
}

// wantsFocused reports the logical state a signal requests
func (s Signal) wantsFocused() bool {
	switch s {
	case SignalFocus, SignalRestore, SignalShow:
		return true
	}
	return false
}

// Monitor tracks whether the window is focused and emits an Event on each edge
// while the gate reports the window as locked.
// FUNCTIONAL DISCOVERY: State follows signals even while unlocked, so locking an unfocused
// window and then focusing it still produces focus-regained
type Monitor struct {
	mu      sync.Mutex
	focused bool
	locked  func() bool
	emit    func(Event)
}

// NewMonitor starts in the focused state. locked gates emission; emit may be nil.
func NewMonitor(locked func() bool, emit func(Event)) *Monitor {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Monitor{focused: true, locked: locked, emit: emit}
}

// Handle applies a signal. It returns the emitted event, if any.
func (m *Monitor) Handle(sig Signal) (Event, bool) {
	m.mu.Lock()
	want := sig.wantsFocused()
	if want == m.focused {
		m.mu.Unlock()
		return "", false
	}
	m.focused = want
	m.mu.Unlock()

	// TECHNICAL DISCOVERY: The gate is consulted outside the monitor lock so the owner
	// may guard its mode with its own mutex without lock ordering concerns
	if m.locked == nil || !m.locked() {
		return "", false
	}

	ev := EventFocusLost
	if want {
		ev = EventFocusRegained
	}
	m.emit(ev)
	return ev, true
}

// Focused reports the current logical state
func (m *Monitor) Focused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focused
}
