package types

import "encoding/json"

// Envelope is the single frame shape exchanged over the relay WebSocket.
// ARCHITECTURAL DISCOVERY: A non-nil ID asks the receiver to answer with an "ack" frame
// carrying the same ID, which is how callback-style requests (validate-class-code) are modelled.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    *int64          `json:"id,omitempty"`
}

// NewEnvelope encodes data into a frame for the given event
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, ErrInvalidPayload
	}
	env.Data = raw
	return env, nil
}

// Decode unmarshals the frame payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// Payloads for protocol events

type CreateClassRequest struct {
	ClassCode   string `json:"classCode"`
	TeacherName string `json:"teacherName"`
}

type ClassCreatedEvent struct {
	ClassCode string       `json:"classCode"`
	Session   ClassSession `json:"session"`
}

type JoinClassRequest struct {
	ClassCode   string `json:"classCode"`
	StudentName string `json:"studentName"`
}

type JoinSuccessEvent struct {
	ClassCode string   `json:"classCode"`
	Settings  Settings `json:"settings"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type StudentJoinedEvent struct {
	Student       StudentRecord   `json:"student"`
	TotalStudents int             `json:"totalStudents"`
	AllStudents   []StudentRecord `json:"allStudents"`
}

type StudentLeftEvent struct {
	StudentID     string          `json:"studentId"`
	TotalStudents int             `json:"totalStudents"`
	AllStudents   []StudentRecord `json:"allStudents"`
}

type SendToStudentRequest struct {
	StudentID string          `json:"studentId"`
	Command   json.RawMessage `json:"command"`
}

type StudentListEvent struct {
	Students []StudentRecord `json:"students"`
}

// AckEvent answers a request frame that carried an id
type AckEvent struct {
	ID     int64       `json:"id"`
	Result interface{} `json:"result"`
}
