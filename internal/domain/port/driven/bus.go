package driven

import (
	"context"
	"time"
)

// Message is a single queued record delivered to a subscriber.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
}

// Handler processes one delivered message. A nil return acknowledges the
// message and advances the consumer group's offset; an error leaves the
// offset in place so the same message is redelivered (at-least-once). The
// consumer argument lets a handler apply channel-wide backpressure from
// inside message processing.
type Handler func(ctx context.Context, msg Message, consumer Consumer) error

// Consumer is the handler-facing control surface of a subscription.
type Consumer interface {
	// Pause stops delivery of further messages to this subscription for the
	// given duration, after which delivery resumes automatically. Queued
	// messages are retained, and publishing is unaffected.
	Pause(d time.Duration)
}

// Subscription is one consumer group's view of a topic.
type Subscription interface {
	Consumer

	// Resume lifts a pause before its deadline.
	Resume()

	// Close drains the in-flight message, releases partition leases, and
	// stops delivery. The subscription cannot be reused afterwards.
	Close() error
}

// Broker is a durable, partitioned, at-least-once publish/subscribe bus.
// Ordering is guaranteed only within a partition; messages with the same key
// land on the same partition. The bus guarantees at most one active consumer
// per partition per group at a time.
type Broker interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Subscribe(ctx context.Context, topic, group string, h Handler) (Subscription, error)
}
