package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/serialization"
)

// Dispatcher multiplexes typed handlers on one queue: each incoming
// message's type tag selects the matching handler. Registrations are
// validated eagerly; duplicate or nil handlers are rejected at
// registration time, not discovered per message.
type Dispatcher struct {
	registry serialization.TypeRegistry
	handlers map[string]MessageHandler
	logger   *slog.Logger
	mu       sync.RWMutex
}

// DispatcherOption configures the Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher resolving type tags through the given
// registry
func NewDispatcher(registry serialization.TypeRegistry, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		handlers: make(map[string]MessageHandler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Register binds a handler to the prototype's type tag. The type must be
// registered for serialization; a second handler for the same tag is a
// configuration error.
func (d *Dispatcher) Register(prototype contracts.Message, handler MessageHandler) error {
	if handler == nil {
		return &contracts.ConfigurationError{Op: "register-handler", Detail: "handler", Err: contracts.ErrNilHandler}
	}

	typeName, err := d.registry.TypeName(prototype)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[typeName]; exists {
		return &contracts.ConfigurationError{Op: "register-handler", Detail: typeName, Err: contracts.ErrDuplicateHandler}
	}
	d.handlers[typeName] = handler

	d.logger.Debug("registered handler", "messageType", typeName)
	return nil
}

// RegisterFunc binds a handler function to the prototype's type tag
func (d *Dispatcher) RegisterFunc(prototype contracts.Message, handler MessageHandlerFunc) error {
	return d.Register(prototype, handler)
}

// Handle implements MessageHandler by routing on the message's type tag
func (d *Dispatcher) Handle(ctx context.Context, msg contracts.Message) error {
	typeName, err := d.registry.TypeName(msg)
	if err != nil {
		return err
	}

	d.mu.RLock()
	handler, exists := d.handlers[typeName]
	d.mu.RUnlock()

	if !exists {
		return &contracts.ConfigurationError{Op: "dispatch", Detail: typeName, Err: contracts.ErrNoHandler}
	}
	return handler.Handle(ctx, msg)
}

// Types returns the registered type tags
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.handlers))
	for typeName := range d.handlers {
		types = append(types, typeName)
	}
	return types
}
