package contracts

import (
	"time"
)

// Message is the base interface for all messages carried by the bus
type Message interface {
	GetID() string
	GetTimestamp() time.Time
	GetType() string
	GetCorrelationID() string
	SetCorrelationID(correlationID string)
}

// Request is a message that expects a correlated Response
type Request interface {
	Message
	GetReplyTo() string
	SetReplyTo(replyTo string)
}

// Response answers a Request, carrying the request's correlation ID
type Response interface {
	Message
	IsSuccess() bool
	GetError() error
}
