package lockdown

import "strings"

// Key is one keyboard event as seen by the host window before it reaches the page
type Key struct {
	Key     string
	Control bool
	Alt     bool
	Shift   bool
	Meta    bool
}

func (k Key) is(name string) bool {
	return strings.EqualFold(k.Key, name)
}

// isMinimizeShortcut is the operator escape hatch, honored in every mode
func (k Key) isMinimizeShortcut() bool {
	return k.Control && k.is("m")
}

// blockedWhileLocked reports whether a locked window swallows k.
// FUNCTIONAL DISCOVERY: Escape only matters in fullscreen, where it would leave fullscreen
func blockedWhileLocked(k Key, fullScreen bool) bool {
	switch {
	case k.Meta, k.is("Meta"), k.is("Super"), k.is("OS"):
		return true
	case k.Control && k.is("w"):
		return true
	case k.is("F11"):
		return true
	case k.Alt && k.is("F4"):
		return true
	case k.is("Escape") && fullScreen:
		return true
	}
	return false
}
