package messaging

import (
	"context"
	"log/slog"

	"github.com/typebus/typebus-go/contracts"
)

// MessageHandler processes a single delivered message. A nil return issues
// complete; an error return (or a panic) issues abandon for this attempt.
type MessageHandler interface {
	Handle(ctx context.Context, msg contracts.Message) error
}

// MessageHandlerFunc is a function adapter for MessageHandler
type MessageHandlerFunc func(ctx context.Context, msg contracts.Message) error

// Handle implements MessageHandler
func (f MessageHandlerFunc) Handle(ctx context.Context, msg contracts.Message) error {
	return f(ctx, msg)
}

// Responder handles an incoming request and produces the correlated response
type Responder interface {
	HandleRequest(ctx context.Context, req contracts.Request) (contracts.Response, error)
}

// ResponderFunc is a function adapter for Responder
type ResponderFunc func(ctx context.Context, req contracts.Request) (contracts.Response, error)

// HandleRequest implements Responder
func (f ResponderFunc) HandleRequest(ctx context.Context, req contracts.Request) (contracts.Response, error) {
	return f(ctx, req)
}

// ErrorReporter receives processing failures at the point they occur. It is
// injected into the engines at construction; implementations must not block.
type ErrorReporter interface {
	ReportError(ctx context.Context, destination string, messageID string, err error)
}

// LogErrorReporter reports errors to a structured logger
type LogErrorReporter struct {
	logger *slog.Logger
}

// NewLogErrorReporter creates an ErrorReporter backed by the given logger
func NewLogErrorReporter(logger *slog.Logger) *LogErrorReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogErrorReporter{logger: logger}
}

// ReportError implements ErrorReporter
func (r *LogErrorReporter) ReportError(ctx context.Context, destination string, messageID string, err error) {
	r.logger.ErrorContext(ctx, "message processing failed",
		"destination", destination,
		"messageId", messageID,
		"error", err,
	)
}
