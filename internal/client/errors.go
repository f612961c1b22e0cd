package client

import "errors"

var (
	ErrClosed     = errors.New("relay client closed")
	ErrInvalidAck = errors.New("malformed ack frame")
	ErrEmptyRelay = errors.New("relay URL is empty")
)
