package router

import (
	"classlock/pkg/types"
)

// ConnectionRouter maps a connection id to its role, session code and display name
// ARCHITECTURAL DISCOVERY: Owned by the relay's single execution context, so the map is
// never touched concurrently and needs no lock. One instance per relay, never a global.
type ConnectionRouter struct {
	records map[string]types.ConnectionRecord // connectionID -> record
}

// NewConnectionRouter creates an empty router
func NewConnectionRouter() *ConnectionRouter {
	return &ConnectionRouter{
		records: make(map[string]types.ConnectionRecord),
	}
}

// Bind records (or replaces) what a connection is within the relay
func (r *ConnectionRouter) Bind(connectionID string, role types.Role, sessionCode, name string) error {
	if connectionID == "" {
		return ErrEmptyConnectionID
	}
	if role != types.RoleTeacher && role != types.RoleStudent {
		return ErrInvalidRole
	}
	r.records[connectionID] = types.ConnectionRecord{
		ConnectionID: connectionID,
		Role:         role,
		SessionCode:  sessionCode,
		Name:         name,
	}
	return nil
}

// Lookup returns the record for a connection
func (r *ConnectionRouter) Lookup(connectionID string) (types.ConnectionRecord, bool) {
	record, exists := r.records[connectionID]
	return record, exists
}

// Teacher returns the record only if the connection is a teacher
func (r *ConnectionRouter) Teacher(connectionID string) (types.ConnectionRecord, error) {
	record, exists := r.records[connectionID]
	if !exists {
		return types.ConnectionRecord{}, ErrUnknownConnection
	}
	if record.Role != types.RoleTeacher {
		return types.ConnectionRecord{}, ErrNotTeacher
	}
	return record, nil
}

// Remove deletes a record; idempotent
func (r *ConnectionRouter) Remove(connectionID string) {
	delete(r.records, connectionID)
}

// Count returns the number of bound connections
func (r *ConnectionRouter) Count() int {
	return len(r.records)
}

// CountByRole returns bound connections per role for health reporting
func (r *ConnectionRouter) CountByRole() map[types.Role]int {
	counts := map[types.Role]int{types.RoleTeacher: 0, types.RoleStudent: 0}
	for _, record := range r.records {
		counts[record.Role]++
	}
	return counts
}
