// Package nats implements messaging.Transport over NATS JetStream.
//
// Each queue maps to a single-subject stream. JetStream's acknowledgment
// verbs line up with the delivery lifecycle directly: Ack completes, Nak
// abandons, Term dead-letters and InProgress renews the acknowledgment
// window while a handler runs.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
)

// Transport implements messaging.Transport for NATS JetStream
type Transport struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	ackWait time.Duration
	logger  *slog.Logger
}

// TransportOption configures the transport
type TransportOption func(*Transport)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithAckWait sets the acknowledgment window granted per delivery; renewals
// extend it
func WithAckWait(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.ackWait = d
	}
}

// NewTransport connects to NATS and returns a JetStream-backed transport
func NewTransport(url string, options ...TransportOption) (*Transport, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	t := &Transport{
		nc:      nc,
		js:      js,
		ackWait: time.Minute,
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// Stream names may not contain dots, so queue names are flattened.
func streamName(queue string) string {
	return "typebus-" + strings.ReplaceAll(queue, ".", "-")
}

// CreateQueue creates the queue's backing stream if it does not exist
func (t *Transport) CreateQueue(_ context.Context, name string, _ messaging.QueueOptions) error {
	_, err := t.js.AddStream(&nats.StreamConfig{
		Name:     streamName(name),
		Subjects: []string{name},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// LookupDestination reports whether the queue's backing stream exists
func (t *Transport) LookupDestination(_ context.Context, name string) (bool, error) {
	_, err := t.js.StreamInfo(streamName(name))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up stream: %w", err)
	}
	return true, nil
}

// Send publishes an envelope to the queue's subject
func (t *Transport) Send(_ context.Context, destination string, env *contracts.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	msg := nats.NewMsg(destination)
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, env.ID)

	_, err = t.js.PublishMsg(msg)
	return err
}

// Subscribe opens a durable queue-group consumer for the descriptor. Topic
// filters are applied at the subscription edge; non-matching messages are
// acknowledged and discarded, mirroring a broker-side subscription rule.
func (t *Transport) Subscribe(ctx context.Context, desc messaging.SubscriptionDescriptor, deliver func(messaging.Delivery)) (messaging.ReceiverHandle, error) {
	if err := t.CreateQueue(ctx, desc.Queue, messaging.QueueOptions{}); err != nil {
		return nil, err
	}

	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.AckWait(t.ackWait),
	}
	if desc.MaxDeliveryCount > 0 {
		opts = append(opts, nats.MaxDeliver(desc.MaxDeliveryCount))
	}

	group := strings.ReplaceAll(desc.Name, ".", "-")
	sub, err := t.js.QueueSubscribe(desc.Queue, group, func(msg *nats.Msg) {
		var env contracts.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.logger.Error("dropping undecodable envelope",
				"destination", desc.Queue,
				"error", err,
			)
			_ = msg.Term()
			return
		}
		if !topicMatches(desc.TopicFilters, env.Topic) {
			_ = msg.Ack()
			return
		}
		deliver(&delivery{msg: msg, env: &env})
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return &receiverHandle{sub: sub}, nil
}

func topicMatches(filters []string, topic string) bool {
	if len(filters) == 0 || topic == "" {
		return true
	}
	for _, f := range filters {
		if f == topic {
			return true
		}
	}
	return false
}

// Close drains the connection
func (t *Transport) Close() error {
	return t.nc.Drain()
}

type receiverHandle struct {
	sub *nats.Subscription
}

// Close stops intake; in-flight messages keep their ack window
func (h *receiverHandle) Close() error {
	return h.sub.Drain()
}

type delivery struct {
	msg *nats.Msg
	env *contracts.Envelope
}

// Envelope returns the delivered envelope
func (d *delivery) Envelope() *contracts.Envelope {
	return d.env
}

// DeliveryCount returns the attempt count including this delivery
func (d *delivery) DeliveryCount() int {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

// Complete acks the message
func (d *delivery) Complete(_ context.Context) error {
	return d.msg.Ack()
}

// Abandon naks the message, making it immediately redeliverable
func (d *delivery) Abandon(_ context.Context) error {
	return d.msg.Nak()
}

// DeadLetter terminates redelivery of the message
func (d *delivery) DeadLetter(_ context.Context, _ string) error {
	return d.msg.Term()
}

// RenewLock extends the acknowledgment window
func (d *delivery) RenewLock(_ context.Context) error {
	return d.msg.InProgress()
}
