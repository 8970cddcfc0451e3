package messaging

import (
	"time"
)

// PublishOptions configures a single publish call
type PublishOptions struct {
	Topic     string // topic tag override; defaults to the naming convention
	MessageID string // message id override; defaults to the message's own id
	Queue     string // explicit destination queue, bypassing type routing
}

// PublishOption configures publish behavior
type PublishOption func(*PublishOptions)

// WithTopic overrides the topic tag attached to the envelope
func WithTopic(topic string) PublishOption {
	return func(opts *PublishOptions) {
		opts.Topic = topic
	}
}

// WithMessageID overrides the generated message id
func WithMessageID(id string) PublishOption {
	return func(opts *PublishOptions) {
		opts.MessageID = id
	}
}

// WithQueue sends to an explicit queue instead of the type-derived one
func WithQueue(queue string) PublishOption {
	return func(opts *PublishOptions) {
		opts.Queue = queue
	}
}

// SubscriptionOptions configures subscription behavior
type SubscriptionOptions struct {
	SubscriptionName    string
	TopicFilters        []string
	Mode                ReceiveMode
	DuplicateDetection  bool
	MaxDeliveryCount    int
	MaxConcurrentCalls  int
	LockRenewalInterval time.Duration
}

// SubscriptionOption configures subscription behavior
type SubscriptionOption func(*SubscriptionOptions)

// WithSubscriptionName sets the subscription name
func WithSubscriptionName(name string) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.SubscriptionName = name
	}
}

// WithTopicFilters sets the topic filters; the default is the message
// type's own topic
func WithTopicFilters(filters ...string) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.TopicFilters = filters
	}
}

// WithReceiveMode sets the receive mode
func WithReceiveMode(mode ReceiveMode) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.Mode = mode
	}
}

// WithDuplicateDetection enables broker-side duplicate detection
func WithDuplicateDetection(enabled bool) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.DuplicateDetection = enabled
	}
}

// WithMaxDeliveryCount sets the attempt count after which the transport
// dead-letters a message
func WithMaxDeliveryCount(count int) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.MaxDeliveryCount = count
	}
}

// WithMaxConcurrentCalls bounds the number of handler invocations running
// concurrently for one subscription
func WithMaxConcurrentCalls(limit int) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.MaxConcurrentCalls = limit
	}
}

// WithLockRenewalInterval sets the interval between peek-lock renewals
// while a handler is in flight
func WithLockRenewalInterval(interval time.Duration) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.LockRenewalInterval = interval
	}
}
