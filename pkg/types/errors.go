package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidClassCode   = errors.New("class code must be 1-32 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidName        = errors.New("display name must be at most 64 characters")
	ErrInvalidPayload     = errors.New("invalid JSON payload")
	ErrInvalidCommand     = errors.New("command must be a JSON value")
	ErrMissingCommandType = errors.New("command type is required")
	ErrInvalidSettings    = errors.New("settings must be a JSON object")
)
