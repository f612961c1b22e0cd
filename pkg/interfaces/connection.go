package interfaces

// Connection represents a live relay client connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and relay logic
type Connection interface {
	// ID returns the server-assigned connection identifier
	ID() string

	// WriteJSON queues a JSON value for delivery (thread-safe, ordered per connection)
	WriteJSON(v interface{}) error

	// Emit queues an event frame for delivery
	Emit(event string, data interface{}) error

	// Done is closed once the connection has shut down
	Done() <-chan struct{}

	// Close closes the connection and cleans up resources
	Close() error
}
