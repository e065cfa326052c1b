package message_broaker

import "context"

// MessageBroker moves opaque message bodies between talkvault instances and outside consumers.
type MessageBroker interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
	Consume(ctx context.Context, queue string) (<-chan []byte, error)
	Close() error
}
