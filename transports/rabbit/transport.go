// Package rabbit implements messaging.Transport over RabbitMQ.
//
// Envelopes travel as JSON message bodies with the topic tag as the routing
// key on a per-queue topic exchange. AMQP's unacked state stands in for the
// peek-lock: Complete maps to Ack, Abandon to Nack with requeue, DeadLetter
// to Nack without requeue (routed to the queue's dead-letter exchange).
// AMQP holds a message for as long as the channel lives, so RenewLock is a
// no-op acknowledged locally.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/xid"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
)

const (
	exchangeSuffix   = ".x"
	deadLetterSuffix = ".dlq"
	deliveryCountKey = "x-typebus-delivery-count"
)

// Transport implements messaging.Transport for RabbitMQ
type Transport struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
	mu     sync.Mutex
}

// TransportOption configures the transport
type TransportOption func(*Transport)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport connects to RabbitMQ and returns a transport
func NewTransport(connectionString string, options ...TransportOption) (*Transport, error) {
	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	t := &Transport{
		conn:   conn,
		ch:     ch,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// CreateQueue declares a queue, its topic exchange and its dead-letter queue
func (t *Transport) CreateQueue(_ context.Context, name string, opts messaging.QueueOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ch.ExchangeDeclare(name+exchangeSuffix, "topic", true, opts.AutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if _, err := t.ch.QueueDeclare(name+deadLetterSuffix, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": name + deadLetterSuffix,
	}
	if _, err := t.ch.QueueDeclare(name, !opts.AutoDelete, opts.AutoDelete, opts.Exclusive, false, args); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	// Unfiltered binding so direct sends without a topic tag still arrive.
	if err := t.ch.QueueBind(name, "#", name+exchangeSuffix, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// LookupDestination reports whether a queue exists, without declaring it
func (t *Transport) LookupDestination(_ context.Context, name string) (bool, error) {
	// Passive declare closes the channel on a miss, so probe on a
	// throwaway channel.
	probe, err := t.conn.Channel()
	if err != nil {
		return false, fmt.Errorf("failed to open probe channel: %w", err)
	}
	defer probe.Close()

	if _, err := probe.QueueDeclarePassive(name, true, false, false, false, nil); err != nil {
		return false, nil
	}
	return true, nil
}

// Send publishes an envelope to the queue's exchange with the topic tag as
// routing key
func (t *Transport) Send(ctx context.Context, destination string, env *contracts.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	routingKey := env.Topic
	if routingKey == "" {
		routingKey = env.Type
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch.PublishWithContext(ctx, destination+exchangeSuffix, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		MessageId:     env.ID,
		Type:          env.Type,
		CorrelationId: env.CorrelationID,
		ReplyTo:       env.ReplyTo,
		DeliveryMode:  amqp.Persistent,
		Body:          body,
	})
}

// Subscribe consumes the descriptor's queue on a dedicated channel. Topic
// filters become exchange bindings; prefetch is left to the engine's own
// concurrency bound.
func (t *Transport) Subscribe(ctx context.Context, desc messaging.SubscriptionDescriptor, deliver func(messaging.Delivery)) (messaging.ReceiverHandle, error) {
	if err := t.CreateQueue(ctx, desc.Queue, messaging.QueueOptions{}); err != nil {
		return nil, err
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if len(desc.TopicFilters) > 0 {
		if err := ch.QueueUnbind(desc.Queue, "#", desc.Queue+exchangeSuffix, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to drop default binding: %w", err)
		}
		for _, filter := range desc.TopicFilters {
			if err := ch.QueueBind(desc.Queue, filter, desc.Queue+exchangeSuffix, false, nil); err != nil {
				ch.Close()
				return nil, fmt.Errorf("failed to bind topic filter %s: %w", filter, err)
			}
		}
	}

	consumerTag := fmt.Sprintf("typebus-%s", xid.New().String())
	deliveries, err := ch.Consume(desc.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-deliveries:
				if !ok {
					return
				}
				env, err := decodeEnvelope(&msg)
				if err != nil {
					t.logger.Error("dropping undecodable envelope",
						"destination", desc.Queue,
						"error", err,
					)
					_ = msg.Nack(false, false)
					continue
				}
				deliver(&delivery{msg: msg, env: env})
			}
		}
	}()

	return &receiverHandle{ch: ch, consumerTag: consumerTag}, nil
}

// Close closes the channel and connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ch.Close(); err != nil {
		t.conn.Close()
		return err
	}
	return t.conn.Close()
}

func decodeEnvelope(msg *amqp.Delivery) (*contracts.Envelope, error) {
	var env contracts.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		env.Type = msg.Type
	}
	if env.CorrelationID == "" {
		env.CorrelationID = msg.CorrelationId
	}
	if env.ReplyTo == "" {
		env.ReplyTo = msg.ReplyTo
	}
	return &env, nil
}

type receiverHandle struct {
	ch          *amqp.Channel
	consumerTag string
	once        sync.Once
	err         error
}

// Close cancels the consumer; messages already handed out stay unacked on
// the channel until they settle
func (h *receiverHandle) Close() error {
	h.once.Do(func() {
		h.err = h.ch.Cancel(h.consumerTag, false)
	})
	return h.err
}

type delivery struct {
	msg amqp.Delivery
	env *contracts.Envelope
}

// Envelope returns the delivered envelope
func (d *delivery) Envelope() *contracts.Envelope {
	return d.env
}

// DeliveryCount returns the attempt count including this delivery
func (d *delivery) DeliveryCount() int {
	if count, ok := d.msg.Headers[deliveryCountKey].(int32); ok {
		return int(count) + 1
	}
	if d.msg.Redelivered {
		return 2
	}
	return 1
}

// Complete acks the message
func (d *delivery) Complete(_ context.Context) error {
	return d.msg.Ack(false)
}

// Abandon nacks with requeue, making the message immediately redeliverable
func (d *delivery) Abandon(_ context.Context) error {
	return d.msg.Nack(false, true)
}

// DeadLetter nacks without requeue, routing to the dead-letter exchange
func (d *delivery) DeadLetter(_ context.Context, _ string) error {
	return d.msg.Nack(false, false)
}

// RenewLock is a no-op: AMQP holds unacked messages for the channel's life
func (d *delivery) RenewLock(_ context.Context) error {
	return nil
}
