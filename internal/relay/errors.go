package relay

import "errors"

var (
	ErrCodeInUse        = errors.New("class code is already hosted by another teacher")
	ErrTeacherOnlyEvent = errors.New("event requires a teacher connection")
)

// Messages shown to users in join-error and create-error frames
const (
	MessageInvalidCode     = "Invalid class code or class does not exist"
	MessageTeacherOffline  = "Teacher is not currently hosting this class"
	MessageTeacherAsMember = "This connection is hosting a class and cannot join one"
	MessageCodeInUse       = "Class code is already in use"
	MessageBadCode         = "Class code must be 1-32 letters, digits, '-' or '_'"
	MessageBadName         = "Display names are limited to 64 characters"
)
