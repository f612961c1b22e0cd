package journal

import "errors"

var (
	ErrJournalClosed = errors.New("journal is closed")
	ErrJournalFull   = errors.New("journal queue is full")
	ErrUnknownDriver = errors.New("unknown journal driver")
)
