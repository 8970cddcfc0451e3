package contracts

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaseMessage(t *testing.T) {
	t.Run("NewBaseMessage generates unique IDs", func(t *testing.T) {
		m1 := NewBaseMessage("TestMessage")
		m2 := NewBaseMessage("TestMessage")

		assert.NotEmpty(t, m1.GetID())
		assert.NotEqual(t, m1.GetID(), m2.GetID())
	})

	t.Run("NewBaseMessage sets type and timestamp", func(t *testing.T) {
		before := time.Now().UTC()
		m := NewBaseMessage("OrderCreated")

		assert.Equal(t, "OrderCreated", m.GetType())
		assert.False(t, m.GetTimestamp().Before(before))
	})

	t.Run("SetCorrelationID round-trips", func(t *testing.T) {
		m := NewBaseMessage("TestMessage")
		m.SetCorrelationID("corr-1")

		assert.Equal(t, "corr-1", m.GetCorrelationID())
	})
}

func TestBaseRequest(t *testing.T) {
	t.Run("SetReplyTo round-trips", func(t *testing.T) {
		r := NewBaseRequest("PingRequest")
		r.SetReplyTo("bus.reply.abc")

		assert.Equal(t, "bus.reply.abc", r.GetReplyTo())
	})
}

func TestBaseResponse(t *testing.T) {
	t.Run("NewBaseResponse is successful and correlated", func(t *testing.T) {
		r := NewBaseResponse("PongResponse", "corr-7")

		assert.True(t, r.IsSuccess())
		assert.NoError(t, r.GetError())
		assert.Equal(t, "corr-7", r.GetCorrelationID())
	})
}

func TestErrorResponse(t *testing.T) {
	t.Run("carries code and message", func(t *testing.T) {
		r := NewErrorResponse("PongResponse", "corr-9", "NOT_FOUND", "no such order")

		assert.False(t, r.IsSuccess())
		assert.Equal(t, "corr-9", r.GetCorrelationID())
		assert.ErrorContains(t, r.GetError(), "NOT_FOUND")
		assert.ErrorContains(t, r.GetError(), "no such order")
	})
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("SerializationError unwraps cause", func(t *testing.T) {
		cause := errors.New("bad json")
		err := &SerializationError{TypeName: "OrderCreated", Op: "decode", Err: cause}

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "OrderCreated")
	})

	t.Run("TransportError unwraps cause", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := &TransportError{Op: "send", Destination: "bus.orders", Err: cause}

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "bus.orders")
	})

	t.Run("TimeoutError is ErrRequestTimeout", func(t *testing.T) {
		err := &TimeoutError{CorrelationID: "corr-1", Timeout: time.Second}

		assert.ErrorIs(t, err, ErrRequestTimeout)
	})

	t.Run("ConfigurationError wraps sentinel", func(t *testing.T) {
		err := &ConfigurationError{Op: "subscribe", Detail: "OrderCreated", Err: ErrTypeNotRegistered}

		assert.ErrorIs(t, err, ErrTypeNotRegistered)
	})
}
