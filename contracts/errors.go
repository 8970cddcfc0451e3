package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Configuration errors
	ErrTypeNotRegistered = errors.New("configuration: message type not registered")
	ErrDuplicateHandler  = errors.New("configuration: handler already registered for type")
	ErrNilHandler        = errors.New("configuration: handler cannot be nil")
	ErrNoHandler         = errors.New("configuration: no handler registered for type")

	// Request/response errors
	ErrRequestTimeout = errors.New("request: timeout waiting for response")
)

// ConfigurationError reports a caller or configuration mistake. It is never
// retried; the failing call fails fast.
type ConfigurationError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Op, e.Detail)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SerializationError reports a message body that could not be encoded or
// decoded. Messages failing decode are dead-lettered, never retried.
type SerializationError struct {
	TypeName string
	Op       string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %s of %s failed: %v", e.Op, e.TypeName, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed broker operation
type TransportError struct {
	Op          string
	Destination string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s on %s failed: %v", e.Op, e.Destination, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError reports an elapsed request deadline. It is surfaced to the
// requester only; the responder's in-progress work is not cancelled.
type TimeoutError struct {
	CorrelationID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %v", e.CorrelationID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrRequestTimeout
}

// ErrorResponse represents a failed response to a request
type ErrorResponse struct {
	BaseResponse
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// NewErrorResponse creates a failed response correlated to a request
func NewErrorResponse(messageType string, correlationID string, errorCode string, errorMessage string) *ErrorResponse {
	resp := &ErrorResponse{
		BaseResponse: BaseResponse{BaseMessage: NewBaseMessage(messageType), Success: false},
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
	}
	resp.SetCorrelationID(correlationID)
	return resp
}

// IsSuccess returns false for error responses
func (e ErrorResponse) IsSuccess() bool {
	return false
}

// GetError returns the response error
func (e ErrorResponse) GetError() error {
	return fmt.Errorf("%s: %s", e.ErrorCode, e.ErrorMessage)
}
