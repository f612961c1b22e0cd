// Package student is the student's local transport layer: it joins a class over the relay and
// turns relay events into control directives on the window's lockdown controller.
package student

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"classlock/internal/lockdown"
	"classlock/pkg/types"
)

// Relay is the part of the relay client the agent drives
type Relay interface {
	Emit(event string, data interface{}) error
	ValidateClassCode(ctx context.Context, code string) (bool, error)
	Events() <-chan types.Envelope
}

// Directives receives local control directives; *lockdown.Controller satisfies it
type Directives interface {
	Apply(d lockdown.Directive)
}

// Agent binds one relay connection to one student window.
// ARCHITECTURAL DISCOVERY: The agent never touches the window directly; every effect is a
// fire-and-forget directive, the same boundary the desktop shell exposes
type Agent struct {
	relay      Relay
	directives Directives
	logger     *slog.Logger

	// Passthrough receives teacher commands the agent does not interpret (calculator
	// features and similar UI-level commands). Optional.
	Passthrough func(cmd types.Command)

	mu        sync.Mutex
	classCode string
	settings  types.Settings
}

// NewAgent creates an agent that has not joined any class yet
func NewAgent(relay Relay, directives Directives, logger *slog.Logger) *Agent {
	return &Agent{
		relay:      relay,
		directives: directives,
		logger:     logger.With("component", "student_agent"),
	}
}

// Join validates code, joins it under name and applies the session settings.
// Events that arrive before the join answer are handled in order.
func (a *Agent) Join(ctx context.Context, code, name string) (types.Settings, error) {
	ok, err := a.relay.ValidateClassCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("validate class code: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: class %q is not live", ErrJoinRejected, code)
	}

	if err := a.relay.Emit(types.EventJoinClass, types.JoinClassRequest{ClassCode: code, StudentName: name}); err != nil {
		return nil, err
	}

	for {
		select {
		case env, open := <-a.relay.Events():
			if !open {
				return nil, ErrRelayClosed
			}
			switch env.Event {
			case types.EventJoinSuccess:
				return a.joined(env)
			case types.EventJoinError:
				var e types.ErrorEvent
				_ = env.Decode(&e)
				return nil, fmt.Errorf("%w: %s", ErrJoinRejected, e.Message)
			default:
				a.Handle(env)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (a *Agent) joined(env types.Envelope) (types.Settings, error) {
	var success types.JoinSuccessEvent
	if err := env.Decode(&success); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.classCode = success.ClassCode
	a.settings = success.Settings.Clone()
	a.mu.Unlock()

	a.directives.Apply(lockdown.StoreClassCode(success.ClassCode))
	a.applyLockSetting(success.Settings)
	a.logger.Info("joined class", "class_code", success.ClassCode)
	return success.Settings.Clone(), nil
}

// Run handles relay events until the teacher leaves, the relay closes or ctx ends.
// Leaving via ctx sends leave-class first.
func (a *Agent) Run(ctx context.Context) error {
	if a.ClassCode() == "" {
		return ErrNotJoined
	}

	for {
		select {
		case env, open := <-a.relay.Events():
			if !open {
				return ErrRelayClosed
			}
			if env.Event == types.EventTeacherDisconnected {
				a.Handle(env)
				return ErrTeacherDisconnected
			}
			a.Handle(env)
		case <-ctx.Done():
			if err := a.relay.Emit(types.EventLeaveClass, nil); err != nil {
				a.logger.Warn("leave-class not sent", "error", err)
			}
			return ctx.Err()
		}
	}
}

// Handle applies one relay event
func (a *Agent) Handle(env types.Envelope) {
	switch env.Event {
	case types.EventTeacherCommand:
		cmd, err := types.ParseCommand(env.Data)
		if err != nil {
			a.logger.Warn("dropping malformed teacher command", "error", err)
			return
		}
		a.handleCommand(cmd)

	case types.EventSettingsUpdated:
		settings, err := types.ParseSettings(env.Data)
		if err != nil {
			a.logger.Warn("dropping malformed settings", "error", err)
			return
		}
		a.mu.Lock()
		a.settings = settings.Clone()
		a.mu.Unlock()
		a.applyLockSetting(settings)

	case types.EventTeacherDisconnected:
		a.logger.Info("teacher disconnected, returning to login", "class_code", a.ClassCode())
		a.mu.Lock()
		a.classCode = ""
		a.mu.Unlock()
		a.directives.Apply(lockdown.ReturnToLogin())

	default:
		a.logger.Debug("ignoring relay event", "event", env.Event)
	}
}

func (a *Agent) handleCommand(cmd types.Command) {
	switch cmd.Type {
	case types.CommandLock:
		a.directives.Apply(lockdown.SetStudentLock(true))
	case types.CommandUnlock:
		a.directives.Apply(lockdown.SetStudentLock(false))
	case types.CommandCloseWindow:
		a.directives.Apply(lockdown.CloseStudentWindow())
	case types.CommandReturnToLogin:
		a.directives.Apply(lockdown.ReturnToLogin())
	default:
		if a.Passthrough != nil {
			a.Passthrough(cmd)
			return
		}
		a.logger.Debug("unhandled teacher command", "type", cmd.Type)
	}
}

// FUNCTIONAL DISCOVERY: Settings without a boolean "locked" leave the window as it is
func (a *Agent) applyLockSetting(settings types.Settings) {
	if locked, ok := settings.Locked(); ok {
		a.directives.Apply(lockdown.SetStudentLock(locked))
	}
}

// ClassCode returns the joined class, empty before joining or after the teacher left
func (a *Agent) ClassCode() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.classCode
}

// Settings returns a copy of the latest session settings
func (a *Agent) Settings() types.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settings == nil {
		return nil
	}
	return a.settings.Clone()
}
