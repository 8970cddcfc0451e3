package middleware

import (
	"context"
	"fmt"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
)

// MessageFilter decides whether a message should be processed
type MessageFilter interface {
	// ShouldProcess returns true if the message should be processed
	ShouldProcess(ctx context.Context, msg contracts.Message) (bool, error)
}

// MessageFilterFunc is a function adapter for MessageFilter
type MessageFilterFunc func(ctx context.Context, msg contracts.Message) (bool, error)

// ShouldProcess implements MessageFilter
func (f MessageFilterFunc) ShouldProcess(ctx context.Context, msg contracts.Message) (bool, error) {
	return f(ctx, msg)
}

// SkipBehavior defines what happens to a filtered-out message
type SkipBehavior int

const (
	// SkipSilently completes the message without processing it
	SkipSilently SkipBehavior = iota
	// SkipWithError returns an error, abandoning the attempt
	SkipWithError
)

// FilteringInterceptor drops messages the filter rejects. With SkipSilently
// a rejected message is completed, not redelivered; with SkipWithError it
// follows the abandon path.
type FilteringInterceptor struct {
	filter       MessageFilter
	skipBehavior SkipBehavior
}

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter MessageFilter, skipBehavior SkipBehavior) *FilteringInterceptor {
	return &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
	}
}

// Intercept implements Interceptor
func (i *FilteringInterceptor) Intercept(ctx context.Context, msg contracts.Message, next messaging.MessageHandler) error {
	shouldProcess, err := i.filter.ShouldProcess(ctx, msg)
	if err != nil {
		return fmt.Errorf("filter error: %w", err)
	}

	if !shouldProcess {
		if i.skipBehavior == SkipWithError {
			return fmt.Errorf("message filtered: type=%s, id=%s", msg.GetType(), msg.GetID())
		}
		return nil
	}

	return next.Handle(ctx, msg)
}

// Name implements Interceptor
func (i *FilteringInterceptor) Name() string {
	return "filtering"
}
