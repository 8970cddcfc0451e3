package messaging

import (
	"fmt"

	"github.com/rs/xid"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/serialization"
)

// NamingConvention maps a message's registered type to the queue and topic
// names used for routing. The mapping is pure: the same type always yields
// the same names for one convention instance.
type NamingConvention struct {
	registry    serialization.TypeRegistry
	queuePrefix string
}

// NewNamingConvention creates a naming convention over the given registry.
// An empty prefix defaults to "bus".
func NewNamingConvention(registry serialization.TypeRegistry, queuePrefix string) *NamingConvention {
	if queuePrefix == "" {
		queuePrefix = "bus"
	}
	return &NamingConvention{
		registry:    registry,
		queuePrefix: queuePrefix,
	}
}

// TypeName returns the registered type tag for a message
func (n *NamingConvention) TypeName(msg contracts.Message) (string, error) {
	return n.registry.TypeName(msg)
}

// QueueName derives the destination queue for a message type
func (n *NamingConvention) QueueName(msg contracts.Message) (string, error) {
	typeName, err := n.registry.TypeName(msg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", n.queuePrefix, typeName), nil
}

// TopicName derives the topic tag for a message type
func (n *NamingConvention) TopicName(msg contracts.Message) (string, error) {
	return n.registry.TypeName(msg)
}

// ReplyQueueName generates a process-unique reply queue name
func (n *NamingConvention) ReplyQueueName() string {
	return fmt.Sprintf("%s.reply.%s", n.queuePrefix, xid.New().String())
}
