package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"classlock/internal/journal"
	"classlock/internal/router"
	"classlock/pkg/interfaces"
	"classlock/pkg/types"
)

// Registry owns the active class sessions keyed by class code.
// ARCHITECTURAL DISCOVERY: The registry and the connection router are repositories owned by
// one relay and mutated only from its event loop; nothing here is a process-wide singleton.
type Registry struct {
	sessions  map[string]*types.ClassSession // classCode -> session
	conns     *router.ConnectionRouter
	transport interfaces.Transport
	journal   *journal.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegistry creates a registry bound to a connection router and the transport used for
// liveness checks and notifications. journal may be nil.
func NewRegistry(conns *router.ConnectionRouter, transport interfaces.Transport, sessionJournal interfaces.Journal, logger *slog.Logger) *Registry {
	logger = logger.With("component", "session-registry")
	return &Registry{
		sessions:  make(map[string]*types.ClassSession),
		conns:     conns,
		transport: transport,
		journal:   journal.NewRecorder(sessionJournal, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// Create inserts a new session owned by teacherID and binds the teacher's connection record.
// Code collisions are resolved by the caller before calling Create.
func (r *Registry) Create(ctx context.Context, code, teacherID, teacherName string) types.ClassSession {
	if teacherName == "" {
		teacherName = "Teacher"
	}

	session := &types.ClassSession{
		Code:        code,
		TeacherID:   teacherID,
		TeacherName: teacherName,
		Students:    []types.StudentRecord{},
		Settings:    types.DefaultSettings(),
		CreatedAt:   r.now(),
	}
	r.sessions[code] = session

	if err := r.conns.Bind(teacherID, types.RoleTeacher, code, teacherName); err != nil {
		r.logger.Error("failed to bind teacher connection", "connection_id", teacherID, "error", err)
	}

	r.logger.Info("class created", "class_code", code, "teacher_id", teacherID)
	r.journal.Record(ctx, types.JournalSessionCreated, code, teacherID, map[string]string{"teacherName": teacherName})

	return session.Snapshot()
}

// IsLive reports whether code names a session whose teacher is still connected.
// FUNCTIONAL DISCOVERY: A session whose teacher vanished from the transport is evicted here
// (stale-session reclamation) and reported exactly like an unknown code.
func (r *Registry) IsLive(ctx context.Context, code string) bool {
	session, exists := r.sessions[code]
	if !exists {
		return false
	}
	if !r.transport.IsConnected(session.TeacherID) {
		r.logger.Info("evicting stale class, teacher disconnected", "class_code", code, "teacher_id", session.TeacherID)
		r.end(ctx, session, types.JournalSessionEvicted)
		return false
	}
	return true
}

// Join admits studentID into the session named by code and returns a copy of its settings.
// The teacher receives student-joined with the updated roster.
func (r *Registry) Join(ctx context.Context, code, studentID, studentName string) (types.Settings, types.StudentRecord, error) {
	if _, exists := r.sessions[code]; !exists {
		return nil, types.StudentRecord{}, ErrInvalidCode
	}
	if !r.IsLive(ctx, code) {
		return nil, types.StudentRecord{}, ErrTeacherOffline
	}
	session := r.sessions[code]

	if existing, bound := r.conns.Lookup(studentID); bound {
		if existing.Role == types.RoleTeacher {
			return nil, types.StudentRecord{}, ErrTeacherCannotJoin
		}
		if existing.SessionCode == code {
			if i := indexOf(session.Students, studentID); i >= 0 {
				return session.Settings.Clone(), session.Students[i], nil
			}
		} else {
			r.removeStudent(ctx, existing.SessionCode, studentID)
		}
	}

	if studentName == "" {
		studentName = fmt.Sprintf("Student %d", len(session.Students)+1)
	}

	student := types.StudentRecord{
		ID:       studentID,
		Name:     studentName,
		JoinedAt: r.now(),
	}
	session.Students = append(session.Students, student)

	if err := r.conns.Bind(studentID, types.RoleStudent, code, studentName); err != nil {
		r.logger.Error("failed to bind student connection", "connection_id", studentID, "error", err)
	}

	r.notify(session.TeacherID, types.EventStudentJoined, types.StudentJoinedEvent{
		Student:       student,
		TotalStudents: len(session.Students),
		AllStudents:   session.Roster(),
	})

	r.logger.Info("student joined", "class_code", code, "student_id", studentID, "student_name", studentName)
	r.journal.Record(ctx, types.JournalStudentJoined, code, studentID, map[string]string{"name": studentName})

	return session.Settings.Clone(), student, nil
}

// Leave removes a student that departs explicitly while keeping its connection open
func (r *Registry) Leave(ctx context.Context, studentID string) error {
	record, bound := r.conns.Lookup(studentID)
	if !bound || record.Role != types.RoleStudent {
		return ErrNotInSession
	}
	r.conns.Remove(studentID)
	if !r.removeStudent(ctx, record.SessionCode, studentID) {
		return ErrNotInSession
	}
	return nil
}

// RemoveConnection applies the consequences of a connection ending.
// Teacher: every student is told teacher-disconnected and the session is destroyed.
// Student: the roster entry is removed and the teacher receives student-left.
// Unknown ids are ignored.
func (r *Registry) RemoveConnection(ctx context.Context, connectionID string) {
	record, bound := r.conns.Lookup(connectionID)
	if !bound {
		return
	}
	r.conns.Remove(connectionID)

	switch record.Role {
	case types.RoleTeacher:
		session, exists := r.sessions[record.SessionCode]
		// TECHNICAL DISCOVERY: The code may already belong to a newer session after eviction
		if exists && session.TeacherID == connectionID {
			r.end(ctx, session, types.JournalSessionEnded)
		}
	case types.RoleStudent:
		r.removeStudent(ctx, record.SessionCode, connectionID)
	}
}

// OwnedSession returns the live session owned by teacherID for in-loop mutation
func (r *Registry) OwnedSession(teacherID string) (*types.ClassSession, error) {
	record, err := r.conns.Teacher(teacherID)
	if err != nil {
		return nil, err
	}
	session, exists := r.sessions[record.SessionCode]
	if !exists {
		return nil, ErrSessionNotFound
	}
	if session.TeacherID != teacherID {
		return nil, ErrNotSessionOwner
	}
	return session, nil
}

// Get returns a snapshot of a session
func (r *Registry) Get(code string) (types.ClassSession, bool) {
	session, exists := r.sessions[code]
	if !exists {
		return types.ClassSession{}, false
	}
	return session.Snapshot(), true
}

// Student returns the roster entry for studentID in the session named by code
func (r *Registry) Student(code, studentID string) (types.StudentRecord, error) {
	session, exists := r.sessions[code]
	if !exists {
		return types.StudentRecord{}, ErrSessionNotFound
	}
	i := indexOf(session.Students, studentID)
	if i < 0 {
		return types.StudentRecord{}, ErrStudentNotInRoster
	}
	return session.Students[i], nil
}

// List returns snapshots of every session ordered by class code
func (r *Registry) List() []types.ClassSession {
	out := make([]types.ClassSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, session.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Count returns the number of sessions currently held
func (r *Registry) Count() int {
	return len(r.sessions)
}

func (r *Registry) removeStudent(ctx context.Context, code, studentID string) bool {
	session, exists := r.sessions[code]
	if !exists {
		return false
	}
	i := indexOf(session.Students, studentID)
	if i < 0 {
		return false
	}
	name := session.Students[i].Name
	session.Students = append(session.Students[:i], session.Students[i+1:]...)

	r.notify(session.TeacherID, types.EventStudentLeft, types.StudentLeftEvent{
		StudentID:     studentID,
		TotalStudents: len(session.Students),
		AllStudents:   session.Roster(),
	})

	r.logger.Info("student left", "class_code", code, "student_id", studentID, "student_name", name)
	r.journal.Record(ctx, types.JournalStudentLeft, code, studentID, map[string]string{"name": name})
	return true
}

func (r *Registry) end(ctx context.Context, session *types.ClassSession, kind string) {
	for _, student := range session.Students {
		r.conns.Remove(student.ID)
		r.notify(student.ID, types.EventTeacherDisconnected, nil)
	}
	if record, bound := r.conns.Lookup(session.TeacherID); bound && record.SessionCode == session.Code {
		r.conns.Remove(session.TeacherID)
	}
	delete(r.sessions, session.Code)

	r.logger.Info("class ended", "class_code", session.Code, "reason", kind, "students", len(session.Students))
	r.journal.Record(ctx, kind, session.Code, session.TeacherID, map[string]int{"students": len(session.Students)})
}

func (r *Registry) notify(connectionID, event string, data interface{}) {
	if err := r.transport.Notify(connectionID, event, data); err != nil {
		r.logger.Warn("notification not delivered", "connection_id", connectionID, "event", event, "error", err)
	}
}

func indexOf(students []types.StudentRecord, id string) int {
	for i, s := range students {
		if s.ID == id {
			return i
		}
	}
	return -1
}
