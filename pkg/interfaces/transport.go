package interfaces

// Notifier delivers relay events to a connection by id.
// FUNCTIONAL DISCOVERY: Delivery is per recipient and independent; a failure for one
// connection never affects delivery to the others.
type Notifier interface {
	Notify(connectionID string, event string, data interface{}) error
}

// Presence reports whether a connection is still attached to the transport.
// Used by the session registry for stale-session reclamation.
type Presence interface {
	IsConnected(connectionID string) bool
}

// Transport is the union the relay needs from the connection layer
type Transport interface {
	Notifier
	Presence
}
