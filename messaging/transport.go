package messaging

import (
	"context"

	"github.com/typebus/typebus-go/contracts"
)

// ReceiveMode selects how the transport hands deliveries to the engine
type ReceiveMode int

const (
	// PeekLock reserves a message for the receiver until a terminal action
	// (complete, abandon, dead-letter) is issued. The lock must be renewed
	// periodically or the message becomes redeliverable.
	PeekLock ReceiveMode = iota

	// ReceiveAndDelete removes the message on receipt; no terminal action
	// is issued and handler failures are lossy.
	ReceiveAndDelete
)

// SubscriptionDescriptor describes a logical subscription. It is built once
// at subscribe time and immutable thereafter.
type SubscriptionDescriptor struct {
	Queue              string
	Name               string
	TopicFilters       []string
	Mode               ReceiveMode
	DuplicateDetection bool
	MaxDeliveryCount   int
}

// Delivery is the per-message handle supplied by the transport while the
// peek-lock is held. Exactly one of Complete, Abandon or DeadLetter must be
// issued per delivery attempt.
type Delivery interface {
	// Envelope returns the delivered envelope
	Envelope() *contracts.Envelope

	// DeliveryCount returns the broker-maintained attempt count
	DeliveryCount() int

	// Complete removes the message from the queue
	Complete(ctx context.Context) error

	// Abandon releases the lock, making the message immediately redeliverable
	Abandon(ctx context.Context) error

	// DeadLetter moves the message to the dead-letter holding state
	DeadLetter(ctx context.Context, reason string) error

	// RenewLock extends the peek-lock on the message
	RenewLock(ctx context.Context) error
}

// ReceiverHandle stops a running receive loop. Closing it stops intake of
// new deliveries; deliveries already in flight settle on their own.
type ReceiverHandle interface {
	Close() error
}

// QueueOptions configures queue creation
type QueueOptions struct {
	AutoDelete bool
	Exclusive  bool
}

// Transport is the broker capability consumed by the engines. Implementations
// live under transports/.
type Transport interface {
	// LookupDestination reports whether a destination exists
	LookupDestination(ctx context.Context, name string) (bool, error)

	// Send hands an envelope to the broker, returning once it is accepted
	Send(ctx context.Context, destination string, env *contracts.Envelope) error

	// Subscribe opens a receive loop for the descriptor, invoking deliver
	// once per received message. CreateQueue semantics apply to the
	// descriptor's queue if it does not exist yet.
	Subscribe(ctx context.Context, desc SubscriptionDescriptor, deliver func(Delivery)) (ReceiverHandle, error)

	// CreateQueue creates a queue if it does not exist
	CreateQueue(ctx context.Context, name string, opts QueueOptions) error

	// Close releases all transport resources
	Close() error
}
