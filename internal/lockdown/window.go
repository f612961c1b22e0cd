package lockdown

import (
	"sync"

	"classlock/internal/focus"
)

// Bounds is a window rectangle in screen coordinates
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Views the student window can show
const (
	ViewLogin   = "login"
	ViewStudent = "student"
)

// Window is the host window the controller restricts.
// ARCHITECTURAL DISCOVERY: The controller only needs these primitives, so any desktop shell
// (or a headless stand-in) can host a lockable window
type Window interface {
	Bounds() (Bounds, error)
	SetBounds(b Bounds) error
	IsFullScreen() bool
	SetFullScreen(on bool) error
	IsAlwaysOnTop() bool
	SetAlwaysOnTop(on bool) error
	Minimize() error
	Close() error
	LoadView(view string) error
	ShowNotice(message string) error
}

// HeadlessWindow is an in-memory Window for terminal agents and tests.
// Minimize and Restore report the matching focus signal to the registered handler,
// the way a desktop shell reports window events.
type HeadlessWindow struct {
	mu          sync.Mutex
	bounds      Bounds
	fullScreen  bool
	alwaysOnTop bool
	minimized   bool
	closed      bool
	view        string
	notices     []string
	location    string
	onSignal    func(focus.Signal)
	onNavigate  func(url string) bool
}

// NewHeadlessWindow returns a window with the given initial bounds showing view
func NewHeadlessWindow(bounds Bounds, view string) *HeadlessWindow {
	return &HeadlessWindow{bounds: bounds, view: view}
}

// OnSignal registers the receiver of focus signals
func (w *HeadlessWindow) OnSignal(fn func(focus.Signal)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSignal = fn
}

// OnNavigate registers the guard consulted before the window changes location
func (w *HeadlessWindow) OnNavigate(fn func(url string) bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onNavigate = fn
}

// Navigate moves the window to url unless the registered guard vetoes it
func (w *HeadlessWindow) Navigate(url string) bool {
	w.mu.Lock()
	fn := w.onNavigate
	w.mu.Unlock()
	if fn != nil && !fn(url) {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.location = url
	return true
}

// Location returns the last url the window navigated to
func (w *HeadlessWindow) Location() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.location
}

func (w *HeadlessWindow) Bounds() (Bounds, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds, nil
}

func (w *HeadlessWindow) SetBounds(b Bounds) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bounds = b
	return nil
}

func (w *HeadlessWindow) IsFullScreen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fullScreen
}

func (w *HeadlessWindow) SetFullScreen(on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fullScreen = on
	return nil
}

func (w *HeadlessWindow) IsAlwaysOnTop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alwaysOnTop
}

func (w *HeadlessWindow) SetAlwaysOnTop(on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alwaysOnTop = on
	return nil
}

func (w *HeadlessWindow) Minimize() error {
	w.mu.Lock()
	w.minimized = true
	fn := w.onSignal
	w.mu.Unlock()
	if fn != nil {
		fn(focus.SignalMinimize)
	}
	return nil
}

// Restore brings a minimized window back
func (w *HeadlessWindow) Restore() {
	w.mu.Lock()
	w.minimized = false
	fn := w.onSignal
	w.mu.Unlock()
	if fn != nil {
		fn(focus.SignalRestore)
	}
}

func (w *HeadlessWindow) Minimized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimized
}

func (w *HeadlessWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *HeadlessWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *HeadlessWindow) LoadView(view string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view = view
	return nil
}

func (w *HeadlessWindow) View() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

func (w *HeadlessWindow) ShowNotice(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notices = append(w.notices, message)
	return nil
}

// Notices returns every notice shown so far
func (w *HeadlessWindow) Notices() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.notices...)
}
