// Package broker defines the topic log used to fan notifications and
// session terminations out to every gateway instance. Each instance holds
// only its own connections, so a business service talking to one instance
// relies on the broker to reach users connected elsewhere.
package broker

import (
	"context"
)

// Broker publishes opaque payloads to named topics and lets any number of
// subscribers consume them in publish order.
type Broker interface {
	// Publish appends data to topic and returns the generated event ID.
	Publish(ctx context.Context, topic string, data []byte) (eventID string, err error)

	// Subscribe to topic messages, resuming after lastEventID if provided.
	// If lastEventID is empty, the subscription starts with the next published message.
	// An unknown lastEventID also starts with the next published message.
	Subscribe(ctx context.Context, topic string, lastEventID string) (MessageStream, error)

	// Cleanup removes all stored messages of topic and ends its subscriptions.
	Cleanup(ctx context.Context, topic string) error
}

// MessageStream provides ordered message consumption within a topic.
// Streams are safe for use by a single consumer.
type MessageStream interface {
	// Next blocks until the next message is available or ctx is cancelled.
	// Returns io.EOF once the stream is closed.
	Next(ctx context.Context) (MessageEnvelope, error)

	// Close releases resources associated with this stream.
	Close() error
}

// MessageEnvelope wraps a payload with its event ID.
type MessageEnvelope struct {
	// ID is unique and increasing within the topic.
	ID   string `json:"id"`
	Data []byte `json:"data"`
}
