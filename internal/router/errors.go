package router

import "errors"

var (
	ErrEmptyConnectionID = errors.New("connection id cannot be empty")
	ErrInvalidRole       = errors.New("invalid role: must be 'teacher' or 'student'")
	ErrUnknownConnection = errors.New("connection has not created or joined a class")
	ErrNotTeacher        = errors.New("connection is not a teacher")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
