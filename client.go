package typebus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
	"github.com/typebus/typebus-go/serialization"
)

// Bus is the public entry point, composing the publish, subscription,
// send/receive and request/response engines over one transport. It holds no
// logic of its own beyond argument validation and the blocking adaptation
// of the async-first engine paths.
type Bus struct {
	transport  messaging.Transport
	config     *messaging.BusConfig
	registry   serialization.TypeRegistry
	serializer serialization.Serializer
	naming     *messaging.NamingConvention
	publisher  *messaging.MessagePublisher
	subscriber *messaging.MessageSubscriber
	server     *messaging.RequestServer
	logger     *slog.Logger
	reporter   messaging.ErrorReporter

	requestMu     sync.Mutex
	requestClient *messaging.RequestClient
}

// Option configures the Bus
type Option func(*Bus)

// WithLogger sets the logger used by all engines
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithConfig sets the bus configuration; the default is DefaultBusConfig
func WithConfig(cfg *messaging.BusConfig) Option {
	return func(b *Bus) {
		b.config = cfg
	}
}

// WithErrorReporter sets the error reporter invoked at processing failures
func WithErrorReporter(reporter messaging.ErrorReporter) Option {
	return func(b *Bus) {
		b.reporter = reporter
	}
}

// WithSerializer replaces the default JSON serializer. The registry must be
// the one the serializer resolves types through.
func WithSerializer(serializer serialization.Serializer, registry serialization.TypeRegistry) Option {
	return func(b *Bus) {
		b.serializer = serializer
		b.registry = registry
	}
}

// NewBus creates a bus over the given transport
func NewBus(transport messaging.Transport, options ...Option) (*Bus, error) {
	if transport == nil {
		return nil, &contracts.ConfigurationError{Op: "new-bus", Detail: "transport cannot be nil"}
	}

	b := &Bus{
		transport: transport,
		config:    messaging.DefaultBusConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(b)
	}

	if b.registry == nil {
		registry := serialization.NewTypeRegistry()
		b.registry = registry
		b.serializer = serialization.NewJSONSerializer(registry)
	}
	if b.reporter == nil {
		b.reporter = messaging.NewLogErrorReporter(b.logger)
	}

	b.naming = messaging.NewNamingConvention(b.registry, b.config.QueuePrefix)
	b.publisher = messaging.NewMessagePublisher(b.transport, b.serializer, b.naming,
		messaging.WithPublisherLogger(b.logger),
	)
	b.subscriber = messaging.NewMessageSubscriber(b.transport, b.serializer, b.naming,
		messaging.WithSubscriberLogger(b.logger),
		messaging.WithSubscriberErrorReporter(b.reporter),
		messaging.WithSubscriberDefaults(b.config),
	)
	b.server = messaging.NewRequestServer(b.publisher, b.subscriber,
		messaging.WithServerLogger(b.logger),
	)

	return b, nil
}

// Register registers a message type under an explicit type name
func (b *Bus) Register(typeName string, prototype contracts.Message) error {
	return b.registry.Register(typeName, prototype)
}

// RegisterType registers a message type under its struct name
func (b *Bus) RegisterType(prototype contracts.Message) error {
	return b.registry.RegisterType(prototype)
}

// Publish sends a message to its type-derived queue, blocking until the
// transport accepts it. A missing destination yields Delivered=false with a
// nil error.
func (b *Bus) Publish(ctx context.Context, msg contracts.Message, options ...messaging.PublishOption) (*messaging.PublishReceipt, error) {
	return b.publisher.Publish(ctx, msg, options...)
}

// PublishAsync sends without blocking; the outcome arrives on the channel
func (b *Bus) PublishAsync(ctx context.Context, msg contracts.Message, options ...messaging.PublishOption) <-chan messaging.PublishResult {
	return b.publisher.PublishAsync(ctx, msg, options...)
}

// Subscribe registers a handler for a message type's queue
func (b *Bus) Subscribe(ctx context.Context, prototype contracts.Message, handler messaging.MessageHandler, options ...messaging.SubscriptionOption) (*messaging.Subscription, error) {
	return b.subscriber.Subscribe(ctx, prototype, handler, options...)
}

// SubscribeFunc registers a handler function for a message type's queue
func (b *Bus) SubscribeFunc(ctx context.Context, prototype contracts.Message, handler messaging.MessageHandlerFunc, options ...messaging.SubscriptionOption) (*messaging.Subscription, error) {
	return b.subscriber.Subscribe(ctx, prototype, handler, options...)
}

// Send publishes directly to an explicitly named queue
func (b *Bus) Send(ctx context.Context, queue string, msg contracts.Message, options ...messaging.PublishOption) (*messaging.PublishReceipt, error) {
	return b.publisher.SendTo(ctx, queue, msg, options...)
}

// HandlerRegistration binds one message type to its handler on a
// multiplexed queue
type HandlerRegistration struct {
	Prototype contracts.Message
	Handler   messaging.MessageHandler
}

// Receive consumes an explicitly named queue, routing each message to the
// handler registered for its type tag. Registrations are validated before
// any message is received.
func (b *Bus) Receive(ctx context.Context, queue string, registrations []HandlerRegistration, options ...messaging.SubscriptionOption) (*messaging.Subscription, error) {
	if len(registrations) == 0 {
		return nil, &contracts.ConfigurationError{Op: "receive", Detail: "at least one handler registration is required"}
	}

	dispatcher := messaging.NewDispatcher(b.registry, messaging.WithDispatcherLogger(b.logger))
	for _, reg := range registrations {
		if err := dispatcher.Register(reg.Prototype, reg.Handler); err != nil {
			return nil, err
		}
	}
	return b.subscriber.ReceiveFrom(ctx, queue, dispatcher, options...)
}

// Request sends a request and blocks until the correlated response arrives
// or the timeout elapses. A zero timeout uses the configured default.
func (b *Bus) Request(ctx context.Context, req contracts.Request, timeout time.Duration) (contracts.Response, error) {
	client, err := b.requests(ctx)
	if err != nil {
		return nil, err
	}
	return client.Request(ctx, req, timeout)
}

// RequestAsync sends a request and returns a channel yielding the outcome
func (b *Bus) RequestAsync(ctx context.Context, req contracts.Request, timeout time.Duration) <-chan messaging.RequestResult {
	client, err := b.requests(ctx)
	if err != nil {
		out := make(chan messaging.RequestResult, 1)
		out <- messaging.RequestResult{Err: err}
		return out
	}
	return client.RequestAsync(ctx, req, timeout)
}

// Respond subscribes a responder to the request type's queue
func (b *Bus) Respond(ctx context.Context, prototype contracts.Message, responder messaging.Responder, options ...messaging.SubscriptionOption) (*messaging.Subscription, error) {
	return b.server.Respond(ctx, prototype, responder, options...)
}

// RespondFunc subscribes a responder function to the request type's queue
func (b *Bus) RespondFunc(ctx context.Context, prototype contracts.Message, responder messaging.ResponderFunc, options ...messaging.SubscriptionOption) (*messaging.Subscription, error) {
	return b.server.Respond(ctx, prototype, responder, options...)
}

// requests lazily creates the request client and its reply queue on first
// use, so purely publish/subscribe processes never open one.
func (b *Bus) requests(ctx context.Context) (*messaging.RequestClient, error) {
	b.requestMu.Lock()
	defer b.requestMu.Unlock()

	if b.requestClient != nil {
		return b.requestClient, nil
	}

	client, err := messaging.NewRequestClient(ctx, b.transport, b.publisher, b.subscriber, b.naming,
		messaging.WithRequestLogger(b.logger),
		messaging.WithRequestTimeout(b.config.RequestTimeout),
	)
	if err != nil {
		return nil, err
	}
	b.requestClient = client
	return client, nil
}

// Close shuts down the request client, all subscriptions and the transport
func (b *Bus) Close() error {
	b.requestMu.Lock()
	if b.requestClient != nil {
		_ = b.requestClient.Close()
		b.requestClient = nil
	}
	b.requestMu.Unlock()

	_ = b.subscriber.Close()
	return b.transport.Close()
}
