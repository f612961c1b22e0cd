// Package lockdown turns lock directives into concrete restrictions on a student's window.
//
// A Controller owns one window. LOCK snapshots the window, takes it fullscreen and pins it,
// intercepts close requests, suppresses exit shortcuts and asks the keyboard helper to BLOCK.
// UNLOCK undoes each of those in the order they were applied and sends UNBLOCK.
package lockdown

import (
	"log/slog"
	"sync"

	"classlock/internal/focus"
	"classlock/internal/keyblock"
)

// Mode is the lock state of a window
type Mode string

const (
	ModeUnlocked Mode = "UNLOCKED"
	ModeLocked   Mode = "LOCKED"
)

const (
	// CloseNotice is shown instead of closing a locked window
	CloseNotice = "This window is locked. Please ask your teacher to close it."

	LoginWidth  = 500
	LoginHeight = 600
)

// State is the observable lockdown state of one window
type State struct {
	Mode    Mode `json:"mode"`
	Focused bool `json:"focused"`
}

// Helper receives keyboard-suppression commands; sends must not block
type Helper interface {
	Send(cmd keyblock.Command)
}

// Observer is the UI side notified of lock and focus changes
type Observer interface {
	LockChanged(locked bool)
	FocusChanged(ev focus.Event)
}

type nopObserver struct{}

func (nopObserver) LockChanged(bool)          {}
func (nopObserver) FocusChanged(focus.Event) {}

// snapshot is the window state captured on entry to LOCKED
type snapshot struct {
	bounds      Bounds
	hasBounds   bool
	fullScreen  bool
	alwaysOnTop bool
}

// Controller is the per-window lock state machine.
// ARCHITECTURAL DISCOVERY: Every transition runs under one mutex, so window mutations from
// relay commands and host events never interleave
type Controller struct {
	mu           sync.Mutex
	window       Window
	helper       Helper
	observer     Observer
	monitor      *focus.Monitor
	logger       *slog.Logger
	mode         Mode
	saved        *snapshot
	intercepting bool
	suppressing  bool
	quitting     bool
	classCode    string
	allowNav     []string
}

// NewController creates an UNLOCKED controller for window. observer may be nil.
func NewController(window Window, helper Helper, observer Observer, logger *slog.Logger) *Controller {
	if observer == nil {
		observer = nopObserver{}
	}
	c := &Controller{
		window:   window,
		helper:   helper,
		observer: observer,
		logger:   logger.With("component", "lockdown"),
		mode:     ModeUnlocked,
		allowNav: append([]string(nil), DefaultAllowedNavigation...),
	}
	c.monitor = focus.NewMonitor(c.Locked, observer.FocusChanged)
	return c
}

// State returns the current mode and focus
func (c *Controller) State() State {
	return State{Mode: c.Mode(), Focused: c.monitor.Focused()}
}

// Mode returns the current lock mode
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Locked reports whether the window is LOCKED
func (c *Controller) Locked() bool {
	return c.Mode() == ModeLocked
}

// Lock enters LOCKED. Calling it again while LOCKED reasserts every restriction.
func (c *Controller) Lock() {
	c.mu.Lock()
	changed := c.mode != ModeLocked

	// FUNCTIONAL DISCOVERY: Only the first LOCK captures geometry; a re-entrant LOCK would
	// otherwise snapshot the fullscreen window and UNLOCK could never restore the original
	if changed {
		c.capture()
	}

	c.check("enter fullscreen", c.window.SetFullScreen(true))
	c.check("pin window", c.window.SetAlwaysOnTop(true))
	c.intercepting = true
	c.suppressing = true
	c.mode = ModeLocked
	c.helper.Send(keyblock.Block)
	c.mu.Unlock()

	c.logger.Info("window locked", "reentrant", !changed)
	if changed {
		c.observer.LockChanged(true)
	}
}

// Unlock enters UNLOCKED, restoring the window as it was before LOCK. Idempotent.
func (c *Controller) Unlock() {
	c.mu.Lock()
	changed := c.unlockLocked()
	c.mu.Unlock()

	if changed {
		c.logger.Info("window unlocked")
		c.observer.LockChanged(false)
	}
}

// unlockLocked reverses LOCK in application order; c.mu must be held
func (c *Controller) unlockLocked() bool {
	changed := c.mode == ModeLocked

	if saved := c.saved; saved != nil {
		c.check("restore fullscreen", c.window.SetFullScreen(saved.fullScreen))
		c.check("restore pin", c.window.SetAlwaysOnTop(saved.alwaysOnTop))
		if saved.hasBounds {
			c.check("restore bounds", c.window.SetBounds(saved.bounds))
		}
	}
	c.intercepting = false
	c.suppressing = false
	c.mode = ModeUnlocked
	c.saved = nil

	// TECHNICAL DISCOVERY: UNBLOCK goes out even when already unlocked; the helper may have
	// missed an earlier command and a duplicate is harmless
	c.helper.Send(keyblock.Unblock)
	return changed
}

func (c *Controller) capture() {
	s := &snapshot{
		fullScreen:  c.window.IsFullScreen(),
		alwaysOnTop: c.window.IsAlwaysOnTop(),
	}
	if b, err := c.window.Bounds(); err != nil {
		c.check("read bounds", err)
	} else {
		s.bounds, s.hasBounds = b, true
	}
	c.saved = s
}

// ReturnToLogin unlocks, shrinks the window to the login size, forgets the class code
// and shows the login view
func (c *Controller) ReturnToLogin() {
	c.mu.Lock()
	changed := c.unlockLocked()

	b, err := c.window.Bounds()
	c.check("read bounds", err)
	b.Width, b.Height = LoginWidth, LoginHeight
	c.check("set login bounds", c.window.SetBounds(b))
	c.classCode = ""
	c.check("load login view", c.window.LoadView(ViewLogin))
	c.mu.Unlock()

	c.logger.Info("returned to login")
	if changed {
		c.observer.LockChanged(false)
	}
}

// CloseWindow closes the window even while LOCKED
func (c *Controller) CloseWindow() {
	c.mu.Lock()
	c.quitting = true
	c.mu.Unlock()

	c.logger.Info("closing window")
	c.check("close window", c.window.Close())
}

// HandleCloseRequest is called when the user or OS asks to close the window.
// It returns false when the close is vetoed.
func (c *Controller) HandleCloseRequest() bool {
	c.mu.Lock()
	quitting := c.quitting
	intercept := c.intercepting && c.mode == ModeLocked
	c.mu.Unlock()

	if quitting || !intercept {
		return true
	}
	c.logger.Info("close request vetoed while locked")
	c.check("show close notice", c.window.ShowNotice(CloseNotice))
	return false
}

// FilterInput applies the keyboard policy. It returns true when the key is consumed.
func (c *Controller) FilterInput(k Key) bool {
	if k.isMinimizeShortcut() {
		c.check("minimize", c.window.Minimize())
		return true
	}

	c.mu.Lock()
	suppressing := c.suppressing
	c.mu.Unlock()
	if !suppressing {
		return false
	}

	if blockedWhileLocked(k, c.window.IsFullScreen()) {
		c.logger.Debug("key suppressed", "key", k.Key, "ctrl", k.Control, "alt", k.Alt, "meta", k.Meta)
		return true
	}
	return false
}

// SetAllowedNavigation replaces the destinations a locked window may navigate to.
// An empty list vetoes every navigation while LOCKED.
func (c *Controller) SetAllowedNavigation(patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowNav = append([]string(nil), patterns...)
}

// HandleNavigate is called before the window leaves its current page.
// It returns false when the navigation is vetoed.
func (c *Controller) HandleNavigate(url string) bool {
	c.mu.Lock()
	locked := c.mode == ModeLocked
	allowed := navigationAllowed(url, c.allowNav)
	c.mu.Unlock()

	if !locked || allowed {
		return true
	}
	c.logger.Info("navigation vetoed while locked", "url", url)
	return false
}

// HandleSignal feeds a raw host window event to the focus monitor
func (c *Controller) HandleSignal(sig focus.Signal) {
	if ev, ok := c.monitor.Handle(sig); ok {
		c.logger.Info("focus changed while locked", "event", string(ev), "signal", string(sig))
	}
}

// StoreClassCode remembers the class the window belongs to
func (c *Controller) StoreClassCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classCode = code
}

// ClassCode returns the stored class code, empty after ReturnToLogin
func (c *Controller) ClassCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classCode
}

// check logs a failed window operation; transitions always run to completion
func (c *Controller) check(op string, err error) {
	if err != nil {
		c.logger.Warn("window operation failed", "operation", op, "error", err)
	}
}
