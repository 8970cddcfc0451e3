package contracts

import (
	"encoding/json"
)

// Envelope wraps a serialized message body with the routing metadata the
// transport needs to deliver it. The body is opaque to the transport.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Topic         string          `json:"topic,omitempty"`
	Timestamp     string          `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
	ReplyTo       string          `json:"replyTo,omitempty"`
	Body          json.RawMessage `json:"body"`
}
