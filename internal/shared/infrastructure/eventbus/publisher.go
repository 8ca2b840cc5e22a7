// Package eventbus carries access side effects from the webhook process to
// the worker. RabbitMQ backs the bus in deployments with both processes;
// the in-process bus serves single-process and test setups.
package eventbus

import "context"

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}
