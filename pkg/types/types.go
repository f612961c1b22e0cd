package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Role identifies which side of a class session a connection plays
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Inbound protocol events (client -> relay)
// ARCHITECTURAL DISCOVERY: Event names are the wire contract shared with every client build,
// so they are defined once here and referenced by relay, client and tests
const (
	EventCreateClass         = "create-class"
	EventValidateClassCode   = "validate-class-code"
	EventJoinClass           = "join-class"
	EventLeaveClass          = "leave-class"
	EventBroadcastToStudents = "broadcast-to-students"
	EventSendToStudent       = "send-to-student"
	EventUpdateSettings      = "update-settings"
	EventGetStudents         = "get-students"
)

// Outbound protocol events (relay -> client)
const (
	EventClassCreated        = "class-created"
	EventCreateError         = "create-error"
	EventJoinSuccess         = "join-success"
	EventJoinError           = "join-error"
	EventStudentJoined       = "student-joined"
	EventStudentLeft         = "student-left"
	EventTeacherCommand      = "teacher-command"
	EventSettingsUpdated     = "settings-updated"
	EventStudentList         = "student-list"
	EventTeacherDisconnected = "teacher-disconnected"
	EventAck                 = "ack"
)

// Command types understood by the student agent. Any other type is passed through to the UI.
const (
	CommandLock          = "lock"
	CommandUnlock        = "unlock"
	CommandCloseWindow   = "close-window"
	CommandReturnToLogin = "return-to-login"
)

// StudentRecord is one roster entry of a class session
type StudentRecord struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ClassSession is the live association of one teacher and its students under a class code
// FUNCTIONAL DISCOVERY: Students is ordered by join time; roster payloads preserve that order
type ClassSession struct {
	Code        string          `json:"classCode"`
	TeacherID   string          `json:"teacherId"`
	TeacherName string          `json:"teacherName"`
	Students    []StudentRecord `json:"students"`
	Settings    Settings        `json:"settings"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Snapshot returns a deep copy safe to hand to other goroutines or encode later
func (s *ClassSession) Snapshot() ClassSession {
	out := *s
	out.Students = s.Roster()
	out.Settings = s.Settings.Clone()
	return out
}

// Roster returns a copy of the ordered student list
func (s *ClassSession) Roster() []StudentRecord {
	roster := make([]StudentRecord, len(s.Students))
	copy(roster, s.Students)
	return roster
}

// ConnectionRecord is what the relay knows about a connection that created or joined a session
type ConnectionRecord struct {
	ConnectionID string `json:"connectionId"`
	Role         Role   `json:"role"`
	SessionCode  string `json:"sessionCode"`
	Name         string `json:"name"`
}

// Command is an opaque teacher command. Only Type is interpreted by the relay;
// the full object is forwarded verbatim.
type Command struct {
	Type string
	Raw  json.RawMessage
}

// ParseCommand keeps the original bytes and reads the type when the command is an object
// carrying a string "type". Any JSON value is a command; without a type, Type is empty.
func ParseCommand(raw json.RawMessage) (Command, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return Command{}, ErrInvalidCommand
	}
	var head struct {
		Type string `json:"type"`
	}
	// Non-objects and non-string types carry no type
	_ = json.Unmarshal(trimmed, &head)
	buf := make(json.RawMessage, len(trimmed))
	copy(buf, trimmed)
	return Command{Type: head.Type, Raw: buf}, nil
}

// MarshalJSON forwards the original command bytes unchanged
func (c Command) MarshalJSON() ([]byte, error) {
	if len(c.Raw) == 0 {
		return json.Marshal(map[string]string{"type": c.Type})
	}
	return c.Raw, nil
}

// JournalEntry is one audit record of a session event
type JournalEntry struct {
	ID           string          `json:"id"`
	ClassCode    string          `json:"classCode"`
	Kind         string          `json:"kind"`
	ConnectionID string          `json:"connectionId"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	At           time.Time       `json:"at"`
}

// Journal entry kinds
const (
	JournalSessionCreated = "session_created"
	JournalSessionEnded   = "session_ended"
	JournalSessionEvicted = "session_evicted"
	JournalStudentJoined  = "student_joined"
	JournalStudentLeft    = "student_left"
	JournalBroadcast      = "broadcast"
	JournalUnicast        = "unicast"
	JournalSettings       = "settings_updated"
)
