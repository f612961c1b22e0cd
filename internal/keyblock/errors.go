package keyblock

import "errors"

var (
	ErrUnknownCommand   = errors.New("unknown helper command")
	ErrListenerRunning  = errors.New("listener already bound")
	ErrListenerNotBound = errors.New("listener not bound")
	ErrLauncherRunning  = errors.New("helper process already started")
	ErrNoHelperPath     = errors.New("helper executable path is empty")
)
