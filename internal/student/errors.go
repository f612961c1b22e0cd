package student

import "errors"

var (
	ErrJoinRejected        = errors.New("join rejected by relay")
	ErrTeacherDisconnected = errors.New("teacher disconnected")
	ErrNotJoined           = errors.New("agent has not joined a class")
	ErrRelayClosed         = errors.New("relay connection closed")
)
