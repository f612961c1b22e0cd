// Package relay implements the classroom session relay: class creation and joining,
// teacher command fan-out, settings propagation and disconnect cleanup.
package relay

import (
	"context"
	"errors"
	"log/slog"

	"classlock/internal/journal"
	"classlock/internal/router"
	"classlock/internal/session"
	"classlock/pkg/interfaces"
	"classlock/pkg/types"
)

// Relay is the hub processor for the relay protocol.
// ARCHITECTURAL DISCOVERY: Every method runs on the hub goroutine; each handler observes and
// mutates registry and router state atomically with respect to every other handler.
type Relay struct {
	conns     *router.ConnectionRouter
	sessions  *session.Registry
	transport interfaces.Transport
	journal   *journal.Recorder
	limiter   *router.RateLimiter
	logger    *slog.Logger
}

// New wires a relay over a transport. journal and limiter may be nil.
func New(transport interfaces.Transport, sessionJournal interfaces.Journal, limiter *router.RateLimiter, logger *slog.Logger) *Relay {
	conns := router.NewConnectionRouter()
	relayLogger := logger.With("component", "relay")
	return &Relay{
		conns:     conns,
		sessions:  session.NewRegistry(conns, transport, sessionJournal, logger),
		transport: transport,
		journal:   journal.NewRecorder(sessionJournal, relayLogger),
		limiter:   limiter,
		logger:    relayLogger,
	}
}

// Sessions exposes the registry for read-only queries run on the hub loop
func (r *Relay) Sessions() *session.Registry {
	return r.sessions
}

// Connections exposes the connection router for read-only queries run on the hub loop
func (r *Relay) Connections() *router.ConnectionRouter {
	return r.conns
}

// HandleEvent dispatches one inbound frame
func (r *Relay) HandleEvent(ctx context.Context, connectionID string, env types.Envelope) {
	if r.limiter != nil {
		if err := r.limiter.Check(connectionID); err != nil {
			r.logger.Warn("dropping event", "connection_id", connectionID, "event", env.Event, "error", err)
			return
		}
	}

	switch env.Event {
	case types.EventCreateClass:
		r.handleCreateClass(ctx, connectionID, env)
	case types.EventValidateClassCode:
		r.handleValidateClassCode(ctx, connectionID, env)
	case types.EventJoinClass:
		r.handleJoinClass(ctx, connectionID, env)
	case types.EventLeaveClass:
		r.handleLeaveClass(ctx, connectionID)
	case types.EventBroadcastToStudents:
		r.handleBroadcast(ctx, connectionID, env)
	case types.EventSendToStudent:
		r.handleSendToStudent(ctx, connectionID, env)
	case types.EventUpdateSettings:
		r.handleUpdateSettings(ctx, connectionID, env)
	case types.EventGetStudents:
		r.handleGetStudents(connectionID)
	default:
		r.logger.Debug("ignoring unknown event", "connection_id", connectionID, "event", env.Event)
	}
}

// HandleDisconnect applies the consequences of a connection ending
func (r *Relay) HandleDisconnect(ctx context.Context, connectionID string) {
	if r.limiter != nil {
		r.limiter.Forget(connectionID)
	}
	r.sessions.RemoveConnection(ctx, connectionID)
}

func (r *Relay) handleCreateClass(ctx context.Context, connectionID string, env types.Envelope) {
	var req types.CreateClassRequest
	if err := env.Decode(&req); err != nil || !types.IsValidClassCode(req.ClassCode) {
		r.reply(connectionID, types.EventCreateError, types.ErrorEvent{Message: MessageBadCode})
		return
	}
	teacherName, err := types.NormalizeName(req.TeacherName)
	if err != nil {
		r.reply(connectionID, types.EventCreateError, types.ErrorEvent{Message: MessageBadName})
		return
	}

	if r.sessions.IsLive(ctx, req.ClassCode) {
		if existing, _ := r.sessions.Get(req.ClassCode); existing.TeacherID != connectionID {
			r.logger.Info("create-class rejected", "connection_id", connectionID, "class_code", req.ClassCode, "error", ErrCodeInUse)
			r.reply(connectionID, types.EventCreateError, types.ErrorEvent{Message: MessageCodeInUse})
			return
		}
	}

	// FUNCTIONAL DISCOVERY: A connection holds at most one role; whatever it was doing before
	// (hosting another class or sitting in one) is ended first
	r.sessions.RemoveConnection(ctx, connectionID)

	created := r.sessions.Create(ctx, req.ClassCode, connectionID, teacherName)
	r.reply(connectionID, types.EventClassCreated, types.ClassCreatedEvent{
		ClassCode: created.Code,
		Session:   created,
	})
}

// handleValidateClassCode answers whether a live session exists for the code.
// The answer travels in an ack frame carrying the request id.
func (r *Relay) handleValidateClassCode(ctx context.Context, connectionID string, env types.Envelope) {
	var code string
	valid := env.Decode(&code) == nil && types.IsValidClassCode(code) && r.sessions.IsLive(ctx, code)

	if env.ID == nil {
		r.logger.Debug("validate-class-code without ack id", "connection_id", connectionID)
		return
	}
	r.ack(connectionID, *env.ID, valid)
}

func (r *Relay) handleJoinClass(ctx context.Context, connectionID string, env types.Envelope) {
	var req types.JoinClassRequest
	if err := env.Decode(&req); err != nil || !types.IsValidClassCode(req.ClassCode) {
		r.reply(connectionID, types.EventJoinError, types.ErrorEvent{Message: MessageInvalidCode})
		return
	}

	studentName, err := types.NormalizeName(req.StudentName)
	if err != nil {
		r.reply(connectionID, types.EventJoinError, types.ErrorEvent{Message: MessageBadName})
		return
	}

	settings, _, err := r.sessions.Join(ctx, req.ClassCode, connectionID, studentName)
	if err != nil {
		r.logger.Info("join rejected", "connection_id", connectionID, "class_code", req.ClassCode, "error", err)
		r.reply(connectionID, types.EventJoinError, types.ErrorEvent{Message: joinErrorMessage(err)})
		return
	}

	r.reply(connectionID, types.EventJoinSuccess, types.JoinSuccessEvent{
		ClassCode: req.ClassCode,
		Settings:  settings,
	})
}

func (r *Relay) handleLeaveClass(ctx context.Context, connectionID string) {
	if err := r.sessions.Leave(ctx, connectionID); err != nil {
		r.logger.Debug("leave-class ignored", "connection_id", connectionID, "error", err)
	}
}

// handleBroadcast forwards the command verbatim to every student in the sender's session
func (r *Relay) handleBroadcast(ctx context.Context, connectionID string, env types.Envelope) {
	owned, err := r.sessions.OwnedSession(connectionID)
	if err != nil {
		r.dropTeacherEvent(connectionID, env.Event, err)
		return
	}

	cmd, err := types.ParseCommand(env.Data)
	if err != nil {
		r.logger.Warn("dropping malformed broadcast", "connection_id", connectionID, "error", err)
		return
	}
	r.noteUntyped(connectionID, env.Event, cmd)

	// TECHNICAL DISCOVERY: Iterate a roster snapshot; a failed delivery to one student
	// never stops delivery to the rest
	roster := owned.Roster()
	for _, student := range roster {
		r.send(student.ID, types.EventTeacherCommand, cmd)
	}

	r.logger.Info("broadcast delivered", "class_code", owned.Code, "command", cmd.Type, "recipients", len(roster))
	r.journal.Record(ctx, types.JournalBroadcast, owned.Code, connectionID, map[string]interface{}{
		"type":       cmd.Type,
		"recipients": len(roster),
	})
}

// handleSendToStudent forwards a command to one student of the sender's session.
// Unknown or foreign targets are logged and dropped without telling the sender.
func (r *Relay) handleSendToStudent(ctx context.Context, connectionID string, env types.Envelope) {
	owned, err := r.sessions.OwnedSession(connectionID)
	if err != nil {
		r.dropTeacherEvent(connectionID, env.Event, err)
		return
	}

	var req types.SendToStudentRequest
	if err := env.Decode(&req); err != nil {
		r.logger.Warn("dropping malformed send-to-student", "connection_id", connectionID, "error", err)
		return
	}
	cmd, err := types.ParseCommand(req.Command)
	if err != nil {
		r.logger.Warn("dropping malformed send-to-student command", "connection_id", connectionID, "error", err)
		return
	}
	r.noteUntyped(connectionID, env.Event, cmd)

	if _, err := r.sessions.Student(owned.Code, req.StudentID); err != nil {
		r.logger.Warn("dropping command for student outside session",
			"class_code", owned.Code, "student_id", req.StudentID, "error", err)
		return
	}

	r.send(req.StudentID, types.EventTeacherCommand, cmd)
	r.journal.Record(ctx, types.JournalUnicast, owned.Code, connectionID, map[string]string{
		"type":      cmd.Type,
		"studentId": req.StudentID,
	})
}

// handleUpdateSettings shallow-merges the partial settings and pushes the result to every student
func (r *Relay) handleUpdateSettings(ctx context.Context, connectionID string, env types.Envelope) {
	owned, err := r.sessions.OwnedSession(connectionID)
	if err != nil {
		r.dropTeacherEvent(connectionID, env.Event, err)
		return
	}

	partial, err := types.ParseSettings(env.Data)
	if err != nil {
		r.logger.Warn("dropping malformed settings update", "connection_id", connectionID, "error", err)
		return
	}

	owned.Settings = owned.Settings.Merge(partial)
	for _, student := range owned.Roster() {
		r.send(student.ID, types.EventSettingsUpdated, owned.Settings.Clone())
	}

	r.logger.Info("settings updated", "class_code", owned.Code, "students", len(owned.Students))
	r.journal.Record(ctx, types.JournalSettings, owned.Code, connectionID, owned.Settings)
}

func (r *Relay) handleGetStudents(connectionID string) {
	owned, err := r.sessions.OwnedSession(connectionID)
	if err != nil {
		r.dropTeacherEvent(connectionID, types.EventGetStudents, err)
		return
	}
	r.reply(connectionID, types.EventStudentList, types.StudentListEvent{Students: owned.Roster()})
}

// noteUntyped logs a command forwarded without a type; the relay never interprets payloads
func (r *Relay) noteUntyped(connectionID, event string, cmd types.Command) {
	if cmd.Type == "" {
		r.logger.Info("forwarding command as sent", "connection_id", connectionID, "event", event,
			"error", types.ErrMissingCommandType)
	}
}

func (r *Relay) dropTeacherEvent(connectionID, event string, err error) {
	r.logger.Warn("dropping teacher-only event", "connection_id", connectionID, "event", event,
		"error", errors.Join(ErrTeacherOnlyEvent, err))
}

func (r *Relay) reply(connectionID, event string, data interface{}) {
	r.send(connectionID, event, data)
}

func (r *Relay) send(connectionID, event string, data interface{}) {
	if err := r.transport.Notify(connectionID, event, data); err != nil {
		r.logger.Warn("delivery failed", "connection_id", connectionID, "event", event, "error", err)
	}
}

// ack answers a request frame; the answer is carried as the frame data
func (r *Relay) ack(connectionID string, id int64, result interface{}) {
	r.send(connectionID, types.EventAck, types.AckEvent{ID: id, Result: result})
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrTeacherOffline):
		return MessageTeacherOffline
	case errors.Is(err, session.ErrTeacherCannotJoin):
		return MessageTeacherAsMember
	default:
		return MessageInvalidCode
	}
}
