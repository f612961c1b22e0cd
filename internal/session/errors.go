package session

import "errors"

var (
	ErrInvalidCode        = errors.New("class code not found")
	ErrTeacherOffline     = errors.New("teacher is not connected")
	ErrTeacherCannotJoin  = errors.New("teacher connection cannot join as a student")
	ErrNotInSession       = errors.New("connection is not a student in a class")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotSessionOwner    = errors.New("connection does not own this session")
	ErrStudentNotInRoster = errors.New("student not in session roster")
)
