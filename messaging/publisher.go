package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/serialization"
)

// PublishReceipt reports the outcome of a publish call. Delivered is false
// when the destination does not exist in the transport; a topic with zero
// subscribers is a valid steady state, not an error, so the publish is a
// silent no-op.
type PublishReceipt struct {
	MessageID   string
	Destination string
	Topic       string
	Delivered   bool
}

// PublishResult is the asynchronous publish outcome
type PublishResult struct {
	Receipt *PublishReceipt
	Err     error
}

// MessagePublisher resolves destinations from message types, serializes
// bodies and hands envelopes to the transport.
type MessagePublisher struct {
	transport  Transport
	serializer serialization.Serializer
	naming     *NamingConvention
	logger     *slog.Logger
}

// PublisherOption configures the MessagePublisher
type PublisherOption func(*MessagePublisher)

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *MessagePublisher) {
		p.logger = logger
	}
}

// NewMessagePublisher creates a new message publisher
func NewMessagePublisher(transport Transport, serializer serialization.Serializer, naming *NamingConvention, options ...PublisherOption) *MessagePublisher {
	p := &MessagePublisher{
		transport:  transport,
		serializer: serializer,
		naming:     naming,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish resolves the destination queue from the message type, serializes
// the message and sends it. The returned receipt has Delivered=false and a
// nil error when the destination does not exist.
func (p *MessagePublisher) Publish(ctx context.Context, msg contracts.Message, options ...PublishOption) (*PublishReceipt, error) {
	if msg == nil {
		return nil, &contracts.ConfigurationError{Op: "publish", Detail: "message cannot be nil"}
	}

	opts := PublishOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	typeName, err := p.naming.TypeName(msg)
	if err != nil {
		return nil, err
	}

	queue := opts.Queue
	if queue == "" {
		queue, err = p.naming.QueueName(msg)
		if err != nil {
			return nil, err
		}
	}

	topic := opts.Topic
	if topic == "" && opts.Queue == "" {
		topic, err = p.naming.TopicName(msg)
		if err != nil {
			return nil, err
		}
	}

	exists, err := p.transport.LookupDestination(ctx, queue)
	if err != nil {
		return nil, &contracts.TransportError{Op: "lookup", Destination: queue, Err: err}
	}
	if !exists {
		p.logger.DebugContext(ctx, "destination absent, publish dropped",
			"destination", queue,
			"messageType", typeName,
			"messageId", msg.GetID(),
		)
		return &PublishReceipt{MessageID: msg.GetID(), Destination: queue, Topic: topic}, nil
	}

	body, err := p.serializer.Serialize(msg)
	if err != nil {
		return nil, err
	}

	messageID := opts.MessageID
	if messageID == "" {
		messageID = msg.GetID()
	}
	if messageID == "" {
		messageID = uuid.New().String()
	}

	env := &contracts.Envelope{
		ID:            messageID,
		Type:          typeName,
		Topic:         topic,
		Timestamp:     msg.GetTimestamp().UTC().Format(time.RFC3339Nano),
		CorrelationID: msg.GetCorrelationID(),
		Body:          body,
	}
	if req, ok := msg.(contracts.Request); ok {
		env.ReplyTo = req.GetReplyTo()
	}

	if err := p.transport.Send(ctx, queue, env); err != nil {
		return nil, &contracts.TransportError{Op: "send", Destination: queue, Err: err}
	}

	p.logger.DebugContext(ctx, "message published",
		"destination", queue,
		"topic", topic,
		"messageType", typeName,
		"messageId", messageID,
	)

	return &PublishReceipt{MessageID: messageID, Destination: queue, Topic: topic, Delivered: true}, nil
}

// PublishAsync publishes without blocking the caller, delivering the
// outcome on the returned channel once the transport accepts the envelope.
func (p *MessagePublisher) PublishAsync(ctx context.Context, msg contracts.Message, options ...PublishOption) <-chan PublishResult {
	out := make(chan PublishResult, 1)
	go func() {
		receipt, err := p.Publish(ctx, msg, options...)
		out <- PublishResult{Receipt: receipt, Err: err}
	}()
	return out
}

// SendTo publishes directly to an explicitly named queue, bypassing
// type-based queue and topic routing.
func (p *MessagePublisher) SendTo(ctx context.Context, queue string, msg contracts.Message, options ...PublishOption) (*PublishReceipt, error) {
	if queue == "" {
		return nil, &contracts.ConfigurationError{Op: "send", Detail: "queue name cannot be empty"}
	}
	return p.Publish(ctx, msg, append(options, WithQueue(queue))...)
}
