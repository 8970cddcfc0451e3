package contracts

import (
	"time"

	"github.com/google/uuid"
)

// BaseMessage provides common fields for all message types
type BaseMessage struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// NewBaseMessage creates a new base message with generated ID and current timestamp
func NewBaseMessage(messageType string) BaseMessage {
	return BaseMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      messageType,
	}
}

// GetID returns the message ID
func (m BaseMessage) GetID() string {
	return m.ID
}

// GetTimestamp returns the message timestamp
func (m BaseMessage) GetTimestamp() time.Time {
	return m.Timestamp
}

// GetType returns the message type
func (m BaseMessage) GetType() string {
	return m.Type
}

// GetCorrelationID returns the correlation ID
func (m BaseMessage) GetCorrelationID() string {
	return m.CorrelationID
}

// SetCorrelationID sets the correlation ID
func (m *BaseMessage) SetCorrelationID(correlationID string) {
	m.CorrelationID = correlationID
}

// BaseRequest provides common fields for request messages
type BaseRequest struct {
	BaseMessage
	ReplyTo string `json:"replyTo,omitempty"`
}

// NewBaseRequest creates a new request with generated ID and current timestamp
func NewBaseRequest(messageType string) BaseRequest {
	return BaseRequest{
		BaseMessage: NewBaseMessage(messageType),
	}
}

// GetReplyTo returns the reply-to queue name
func (r BaseRequest) GetReplyTo() string {
	return r.ReplyTo
}

// SetReplyTo sets the reply-to queue name
func (r *BaseRequest) SetReplyTo(replyTo string) {
	r.ReplyTo = replyTo
}

// BaseResponse provides common fields for response messages
type BaseResponse struct {
	BaseMessage
	Success bool `json:"success"`
}

// NewBaseResponse creates a successful response correlated to a request
func NewBaseResponse(messageType string, correlationID string) BaseResponse {
	resp := BaseResponse{
		BaseMessage: NewBaseMessage(messageType),
		Success:     true,
	}
	resp.SetCorrelationID(correlationID)
	return resp
}

// IsSuccess returns whether the response indicates success
func (r BaseResponse) IsSuccess() bool {
	return r.Success
}

// GetError returns nil for successful responses
func (r BaseResponse) GetError() error {
	return nil
}
