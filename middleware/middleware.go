package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
)

// Interceptor processes messages before they reach the final handler. An
// interceptor decides the fate of its attempt the same way a handler does:
// returning nil completes the message, returning an error abandons it.
type Interceptor interface {
	// Intercept processes a message and calls the next handler in the chain
	Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error

	// Name returns the interceptor name for logging and debugging
	Name() string
}

// InterceptorFunc is a function adapter for Interceptor
type InterceptorFunc struct {
	name string
	fn   func(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error
}

// NewInterceptorFunc creates a new function-based interceptor
func NewInterceptorFunc(name string, fn func(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

// Intercept implements Interceptor
func (i *InterceptorFunc) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	return i.fn(ctx, msg, next)
}

// Name implements Interceptor
func (i *InterceptorFunc) Name() string {
	return i.name
}

// Chain composes interceptors around a final handler
type Chain struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewChain creates an empty interceptor chain
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Add appends an interceptor to the chain
func (c *Chain) Add(interceptor Interceptor) *Chain {
	c.interceptors = append(c.interceptors, interceptor)
	return c
}

// Handler wraps the final handler in the chain, outermost interceptor
// first. The result plugs into Subscribe or Receive like any handler.
func (c *Chain) Handler(final messaging.MessageHandler) messaging.MessageHandler {
	handler := final
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		next := handler
		handler = messaging.MessageHandlerFunc(func(ctx context.Context, msg contracts.Message) error {
			return interceptor.Intercept(ctx, msg, next)
		})
	}
	return handler
}

// LoggingInterceptor logs each processing attempt and its outcome
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

// Intercept implements Interceptor
func (i *LoggingInterceptor) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	start := time.Now()
	err := next.Handle(ctx, msg)
	if err != nil {
		i.logger.ErrorContext(ctx, "message processing failed",
			"messageId", msg.GetID(),
			"messageType", msg.GetType(),
			"duration", time.Since(start),
			"error", err,
		)
		return err
	}

	i.logger.DebugContext(ctx, "message processed",
		"messageId", msg.GetID(),
		"messageType", msg.GetType(),
		"duration", time.Since(start),
	)
	return nil
}

// Name implements Interceptor
func (i *LoggingInterceptor) Name() string {
	return "logging"
}

// DeadlineInterceptor bounds each handler invocation with a per-message
// deadline. The deadline applies to the handler only; the delivery's
// terminal action is issued by the engine regardless.
type DeadlineInterceptor struct {
	timeout time.Duration
}

// NewDeadlineInterceptor creates a new deadline interceptor
func NewDeadlineInterceptor(timeout time.Duration) *DeadlineInterceptor {
	return &DeadlineInterceptor{timeout: timeout}
}

// Intercept implements Interceptor
func (i *DeadlineInterceptor) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	if i.timeout <= 0 {
		return next.Handle(ctx, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	return next.Handle(ctx, msg)
}

// Name implements Interceptor
func (i *DeadlineInterceptor) Name() string {
	return "deadline"
}
