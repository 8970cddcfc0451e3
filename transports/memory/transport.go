// Package memory provides an in-process Transport with peek-lock semantics:
// per-attempt delivery counts, abandon-driven redelivery and broker-side
// dead-lettering once a message exhausts its max delivery count. It backs
// the test suites and the demo binary; it is not a durable broker.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
)

var (
	errQueueNotFound  = errors.New("memory: queue not found")
	errAlreadySettled = errors.New("memory: delivery already settled")
	errClosed         = errors.New("memory: transport closed")
)

// DeadLetter is a message parked in a queue's dead-letter store
type DeadLetter struct {
	Envelope      *contracts.Envelope
	Reason        string
	DeliveryCount int
}

type message struct {
	env           *contracts.Envelope
	deliveryCount int
}

type queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	pending     []*message
	deadLetters []DeadLetter
	seen        map[string]bool
	closed      bool
}

func newQueue() *queue {
	q := &queue{seen: make(map[string]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Transport is an in-process messaging.Transport
type Transport struct {
	mu           sync.Mutex
	queues       map[string]*queue
	closed       bool
	renewals     atomic.Int64
	lateRenewals atomic.Int64
}

// NewTransport creates an empty in-process transport
func NewTransport() *Transport {
	return &Transport{queues: make(map[string]*queue)}
}

func (t *Transport) queueNamed(name string) (*queue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[name]
	return q, ok
}

// CreateQueue creates a queue if it does not exist
func (t *Transport) CreateQueue(_ context.Context, name string, _ messaging.QueueOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errClosed
	}
	if _, ok := t.queues[name]; !ok {
		t.queues[name] = newQueue()
	}
	return nil
}

// LookupDestination reports whether a queue exists
func (t *Transport) LookupDestination(_ context.Context, name string) (bool, error) {
	_, ok := t.queueNamed(name)
	return ok, nil
}

// Send enqueues an envelope on an existing queue
func (t *Transport) Send(_ context.Context, destination string, env *contracts.Envelope) error {
	q, ok := t.queueNamed(destination)
	if !ok {
		return fmt.Errorf("%w: %s", errQueueNotFound, destination)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errClosed
	}
	q.pending = append(q.pending, &message{env: env})
	q.cond.Signal()
	return nil
}

// Subscribe opens a receive loop on the descriptor's queue, creating the
// queue if needed. Deliveries are handed out one at a time per loop; the
// caller's handler provides back pressure.
func (t *Transport) Subscribe(ctx context.Context, desc messaging.SubscriptionDescriptor, deliver func(messaging.Delivery)) (messaging.ReceiverHandle, error) {
	if err := t.CreateQueue(ctx, desc.Queue, messaging.QueueOptions{}); err != nil {
		return nil, err
	}
	q, _ := t.queueNamed(desc.Queue)

	h := &receiverHandle{q: q}
	go t.receiveLoop(q, desc, deliver, h)
	return h, nil
}

func (t *Transport) receiveLoop(q *queue, desc messaging.SubscriptionDescriptor, deliver func(messaging.Delivery), h *receiverHandle) {
	for {
		msg, ok := t.next(q, desc, h)
		if !ok {
			return
		}
		deliver(&delivery{transport: t, q: q, msg: msg, desc: desc})
	}
}

// next pops the next deliverable message, filtering by topic tag and
// dropping duplicates when duplicate detection is on. It blocks until a
// message arrives or the handle closes.
func (t *Transport) next(q *queue, desc messaging.SubscriptionDescriptor, h *receiverHandle) (*message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed || h.isClosed() {
			return nil, false
		}
		for len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]

			if !topicMatches(desc.TopicFilters, msg.env.Topic) {
				continue
			}
			if desc.DuplicateDetection {
				if q.seen[msg.env.ID] {
					continue
				}
				q.seen[msg.env.ID] = true
			}

			msg.deliveryCount++
			return msg, true
		}
		q.cond.Wait()
	}
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

// Close closes all queues and stops all receive loops
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	queues := make([]*queue, 0, len(t.queues))
	for _, q := range t.queues {
		queues = append(queues, q)
	}
	t.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}
	return nil
}

// DeadLettered returns the dead-letter store of a queue
func (t *Transport) DeadLettered(queueName string) []DeadLetter {
	q, ok := t.queueNamed(queueName)
	if !ok {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// QueueDepth returns the number of messages waiting on a queue
func (t *Transport) QueueDepth(queueName string) int {
	q, ok := t.queueNamed(queueName)
	if !ok {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Renewals returns the total number of lock renewals observed
func (t *Transport) Renewals() int64 {
	return t.renewals.Load()
}

// LateRenewals returns the number of renewals attempted after a delivery
// had already settled. A correct engine never produces one.
func (t *Transport) LateRenewals() int64 {
	return t.lateRenewals.Load()
}

type receiverHandle struct {
	q      *queue
	closed atomic.Bool
}

func (h *receiverHandle) isClosed() bool {
	return h.closed.Load()
}

// Close stops the receive loop; messages already handed out settle normally
func (h *receiverHandle) Close() error {
	h.closed.Store(true)
	h.q.mu.Lock()
	h.q.cond.Broadcast()
	h.q.mu.Unlock()
	return nil
}

type delivery struct {
	transport *Transport
	q         *queue
	msg       *message
	desc      messaging.SubscriptionDescriptor
	settled   atomic.Bool
}

// Envelope returns the delivered envelope
func (d *delivery) Envelope() *contracts.Envelope {
	return d.msg.env
}

// DeliveryCount returns the attempt count including this delivery
func (d *delivery) DeliveryCount() int {
	return d.msg.deliveryCount
}

// Complete removes the message
func (d *delivery) Complete(_ context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}
	return nil
}

// Abandon makes the message redeliverable, or dead-letters it once the
// descriptor's max delivery count is exhausted.
func (d *delivery) Abandon(_ context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}

	d.q.mu.Lock()
	defer d.q.mu.Unlock()

	if d.desc.MaxDeliveryCount > 0 && d.msg.deliveryCount >= d.desc.MaxDeliveryCount {
		d.q.deadLetters = append(d.q.deadLetters, DeadLetter{
			Envelope:      d.msg.env,
			Reason:        "max delivery count exceeded",
			DeliveryCount: d.msg.deliveryCount,
		})
		return nil
	}

	delete(d.q.seen, d.msg.env.ID)
	d.q.pending = append(d.q.pending, d.msg)
	d.q.cond.Signal()
	return nil
}

// DeadLetter parks the message in the queue's dead-letter store
func (d *delivery) DeadLetter(_ context.Context, reason string) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}

	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	d.q.deadLetters = append(d.q.deadLetters, DeadLetter{
		Envelope:      d.msg.env,
		Reason:        reason,
		DeliveryCount: d.msg.deliveryCount,
	})
	return nil
}

// RenewLock records a renewal; renewing a settled delivery is an error
func (d *delivery) RenewLock(_ context.Context) error {
	if d.settled.Load() {
		d.transport.lateRenewals.Add(1)
		return errAlreadySettled
	}
	d.transport.renewals.Add(1)
	return nil
}
