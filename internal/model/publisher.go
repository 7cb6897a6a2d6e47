package model

// EventPublisher defines a generic interface for emitting pipeline events
// to an external system.
type EventPublisher interface {
	// Publish sends one event on the given subject suffix.
	Publish(suffix string, event interface{}) error

	// Close drains and releases the underlying connection.
	Close()
}
