package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/xid"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/serialization"
)

// MessageSubscriber drives the per-message delivery lifecycle: deserialize,
// invoke the handler under a bounded worker pool, keep the peek-lock renewed
// while the handler runs, and issue exactly one terminal action per attempt.
type MessageSubscriber struct {
	transport     Transport
	serializer    serialization.Serializer
	naming        *NamingConvention
	logger        *slog.Logger
	reporter      ErrorReporter
	defaults      *BusConfig
	subscriptions map[string]*Subscription
	mu            sync.Mutex
}

// SubscriberOption configures the MessageSubscriber
type SubscriberOption func(*MessageSubscriber)

// WithSubscriberLogger sets the logger
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *MessageSubscriber) {
		s.logger = logger
	}
}

// WithSubscriberErrorReporter sets the error reporter
func WithSubscriberErrorReporter(reporter ErrorReporter) SubscriberOption {
	return func(s *MessageSubscriber) {
		s.reporter = reporter
	}
}

// WithSubscriberDefaults sets the fallback configuration applied when a
// subscription does not override a value
func WithSubscriberDefaults(cfg *BusConfig) SubscriberOption {
	return func(s *MessageSubscriber) {
		s.defaults = cfg
	}
}

// NewMessageSubscriber creates a new message subscriber
func NewMessageSubscriber(transport Transport, serializer serialization.Serializer, naming *NamingConvention, options ...SubscriberOption) *MessageSubscriber {
	s := &MessageSubscriber{
		transport:     transport,
		serializer:    serializer,
		naming:        naming,
		logger:        slog.Default(),
		defaults:      DefaultBusConfig(),
		subscriptions: make(map[string]*Subscription),
	}

	for _, opt := range options {
		opt(s)
	}

	if s.reporter == nil {
		s.reporter = NewLogErrorReporter(s.logger)
	}

	return s
}

// Subscription is an active subscription. Closing it stops intake of new
// deliveries and waits for in-flight deliveries to settle; their lock
// renewal timers are cancelled as each delivery settles.
type Subscription struct {
	descriptor      SubscriptionDescriptor
	handler         MessageHandler
	renewalInterval time.Duration
	handle          ReceiverHandle
	pool            *ants.Pool
	inFlight        sync.WaitGroup
	closeOnce       sync.Once
	closeErr        error
}

// Descriptor returns the immutable subscription descriptor
func (sub *Subscription) Descriptor() SubscriptionDescriptor {
	return sub.descriptor
}

// InFlight returns the number of handler invocations currently running
func (sub *Subscription) InFlight() int {
	return sub.pool.Running()
}

// Close stops accepting new deliveries, waits for in-flight deliveries to
// settle and releases the worker pool.
func (sub *Subscription) Close() error {
	sub.closeOnce.Do(func() {
		if sub.handle != nil {
			sub.closeErr = sub.handle.Close()
		}
		sub.inFlight.Wait()
		sub.pool.Release()
	})
	return sub.closeErr
}

// Subscribe establishes a subscription for a message type. The queue and
// default topic filter are derived from the type via the naming convention.
func (s *MessageSubscriber) Subscribe(ctx context.Context, prototype contracts.Message, handler MessageHandler, options ...SubscriptionOption) (*Subscription, error) {
	if prototype == nil {
		return nil, &contracts.ConfigurationError{Op: "subscribe", Detail: "message prototype cannot be nil"}
	}

	queue, err := s.naming.QueueName(prototype)
	if err != nil {
		return nil, err
	}
	topic, err := s.naming.TopicName(prototype)
	if err != nil {
		return nil, err
	}

	return s.subscribe(ctx, queue, handler, []string{topic}, options...)
}

// ReceiveFrom establishes a subscription on an explicitly named queue,
// bypassing type-based routing. With no topic filters set, all messages on
// the queue are delivered.
func (s *MessageSubscriber) ReceiveFrom(ctx context.Context, queue string, handler MessageHandler, options ...SubscriptionOption) (*Subscription, error) {
	return s.subscribe(ctx, queue, handler, nil, options...)
}

func (s *MessageSubscriber) subscribe(ctx context.Context, queue string, handler MessageHandler, defaultFilters []string, options ...SubscriptionOption) (*Subscription, error) {
	if queue == "" {
		return nil, &contracts.ConfigurationError{Op: "subscribe", Detail: "queue name cannot be empty"}
	}
	if handler == nil {
		return nil, &contracts.ConfigurationError{Op: "subscribe", Detail: queue, Err: contracts.ErrNilHandler}
	}

	opts := SubscriptionOptions{
		Mode:                PeekLock,
		MaxDeliveryCount:    s.defaults.MaxDeliveryCount,
		MaxConcurrentCalls:  s.defaults.MaxConcurrentCalls,
		LockRenewalInterval: s.defaults.LockRenewalInterval,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if len(opts.TopicFilters) == 0 {
		opts.TopicFilters = defaultFilters
	}
	if opts.SubscriptionName == "" {
		opts.SubscriptionName = fmt.Sprintf("sub-%s-%s", queue, xid.New().String())
	}
	if opts.MaxConcurrentCalls < 1 {
		opts.MaxConcurrentCalls = 1
	}

	s.mu.Lock()
	if _, exists := s.subscriptions[queue]; exists {
		s.mu.Unlock()
		return nil, &contracts.ConfigurationError{Op: "subscribe", Detail: fmt.Sprintf("already subscribed to queue %s", queue)}
	}
	s.mu.Unlock()

	pool, err := ants.NewPool(opts.MaxConcurrentCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	sub := &Subscription{
		descriptor: SubscriptionDescriptor{
			Queue:              queue,
			Name:               opts.SubscriptionName,
			TopicFilters:       opts.TopicFilters,
			Mode:               opts.Mode,
			DuplicateDetection: opts.DuplicateDetection,
			MaxDeliveryCount:   opts.MaxDeliveryCount,
		},
		handler:         handler,
		renewalInterval: opts.LockRenewalInterval,
		pool:            pool,
	}

	handle, err := s.transport.Subscribe(ctx, sub.descriptor, func(d Delivery) {
		s.dispatch(ctx, sub, d)
	})
	if err != nil {
		pool.Release()
		return nil, &contracts.TransportError{Op: "subscribe", Destination: queue, Err: err}
	}
	sub.handle = handle

	s.mu.Lock()
	s.subscriptions[queue] = sub
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "subscribed",
		"destination", queue,
		"subscription", opts.SubscriptionName,
		"topicFilters", opts.TopicFilters,
		"maxConcurrentCalls", opts.MaxConcurrentCalls,
	)

	return sub, nil
}

// Unsubscribe closes the subscription on a queue
func (s *MessageSubscriber) Unsubscribe(queue string) error {
	s.mu.Lock()
	sub, exists := s.subscriptions[queue]
	if exists {
		delete(s.subscriptions, queue)
	}
	s.mu.Unlock()

	if !exists {
		return &contracts.ConfigurationError{Op: "unsubscribe", Detail: fmt.Sprintf("not subscribed to queue %s", queue)}
	}
	return sub.Close()
}

// Close closes all subscriptions
func (s *MessageSubscriber) Close() error {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, sub)
	}
	s.subscriptions = make(map[string]*Subscription)
	s.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// dispatch hands a delivery to the worker pool. Submission blocks when
// MaxConcurrentCalls deliveries are already in flight, applying back
// pressure to the transport's receive loop.
func (s *MessageSubscriber) dispatch(ctx context.Context, sub *Subscription, d Delivery) {
	sub.inFlight.Add(1)
	err := sub.pool.Submit(func() {
		defer sub.inFlight.Done()
		s.process(ctx, sub, d)
	})
	if err != nil {
		sub.inFlight.Done()
		// Pool released while the transport still had a delivery queued.
		// Abandon so the message is redelivered elsewhere.
		if sub.descriptor.Mode == PeekLock {
			if abandonErr := d.Abandon(context.WithoutCancel(ctx)); abandonErr != nil {
				s.reporter.ReportError(ctx, sub.descriptor.Queue, d.Envelope().ID,
					&contracts.TransportError{Op: "abandon", Destination: sub.descriptor.Queue, Err: abandonErr})
			}
		}
	}
}

// process runs the delivery state machine: deserialize, invoke the handler
// with lock renewal running, then issue the terminal action decided by the
// handler outcome. Exactly one terminal action is issued per attempt, and
// renewal is fully stopped before it.
func (s *MessageSubscriber) process(ctx context.Context, sub *Subscription, d Delivery) {
	env := d.Envelope()
	queue := sub.descriptor.Queue

	// Terminal actions must still reach the broker when the subscribe
	// context has been cancelled mid-flight.
	ackCtx := context.WithoutCancel(ctx)

	msg, err := s.serializer.Deserialize(env.Body, env.Type)
	if err != nil {
		// The body can never be processed; retrying cannot change that.
		s.reporter.ReportError(ctx, queue, env.ID, err)
		s.deadLetter(ackCtx, queue, d, "undecodable message body")
		return
	}

	if env.CorrelationID != "" {
		msg.SetCorrelationID(env.CorrelationID)
	}
	if req, ok := msg.(contracts.Request); ok && env.ReplyTo != "" {
		req.SetReplyTo(env.ReplyTo)
	}

	if sub.descriptor.Mode == ReceiveAndDelete {
		if err := s.invoke(ctx, sub.handler, msg); err != nil {
			s.reporter.ReportError(ctx, queue, env.ID, err)
		}
		return
	}

	renewCtx, stopRenewal := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go s.renewLock(renewCtx, sub, d, renewDone)

	err = s.invoke(ctx, sub.handler, msg)

	stopRenewal()
	<-renewDone

	switch {
	case err == nil:
		s.complete(ackCtx, queue, d)
	case errors.Is(err, contracts.ErrNoHandler):
		// No handler on this queue can ever match the tag.
		s.reporter.ReportError(ctx, queue, env.ID, err)
		s.deadLetter(ackCtx, queue, d, "no handler for type tag")
	default:
		s.reporter.ReportError(ctx, queue, env.ID, err)
		s.abandon(ackCtx, queue, d)
	}
}

// invoke runs the handler, converting a panic into a handler fault
func (s *MessageSubscriber) invoke(ctx context.Context, handler MessageHandler, msg contracts.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, msg)
}

// renewLock keeps the peek-lock alive while the handler runs. The caller
// cancels ctx and waits on done before issuing the terminal action, so a
// renewal can never land after the delivery has settled.
func (s *MessageSubscriber) renewLock(ctx context.Context, sub *Subscription, d Delivery, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(sub.renewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RenewLock(ctx); err != nil {
				s.reporter.ReportError(ctx, sub.descriptor.Queue, d.Envelope().ID,
					&contracts.TransportError{Op: "renew-lock", Destination: sub.descriptor.Queue, Err: err})
			}
		}
	}
}

func (s *MessageSubscriber) complete(ctx context.Context, queue string, d Delivery) {
	if err := d.Complete(ctx); err != nil {
		// Do not abandon after a failed complete; the broker redelivers
		// on lock expiry and the attempt must not settle twice.
		s.reporter.ReportError(ctx, queue, d.Envelope().ID,
			&contracts.TransportError{Op: "complete", Destination: queue, Err: err})
		return
	}
	s.logger.DebugContext(ctx, "message completed",
		"destination", queue,
		"messageId", d.Envelope().ID,
		"deliveryCount", d.DeliveryCount(),
	)
}

func (s *MessageSubscriber) abandon(ctx context.Context, queue string, d Delivery) {
	if err := d.Abandon(ctx); err != nil {
		s.reporter.ReportError(ctx, queue, d.Envelope().ID,
			&contracts.TransportError{Op: "abandon", Destination: queue, Err: err})
		return
	}
	s.logger.DebugContext(ctx, "message abandoned",
		"destination", queue,
		"messageId", d.Envelope().ID,
		"deliveryCount", d.DeliveryCount(),
	)
}

func (s *MessageSubscriber) deadLetter(ctx context.Context, queue string, d Delivery, reason string) {
	if err := d.DeadLetter(ctx, reason); err != nil {
		s.reporter.ReportError(ctx, queue, d.Envelope().ID,
			&contracts.TransportError{Op: "dead-letter", Destination: queue, Err: err})
		return
	}
	s.logger.DebugContext(ctx, "message dead-lettered",
		"destination", queue,
		"messageId", d.Envelope().ID,
		"reason", reason,
	)
}
