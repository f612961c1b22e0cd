package hub

import "errors"

// Hub lifecycle and submission errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrNilProcessor      = errors.New("hub requires a processor")
)
