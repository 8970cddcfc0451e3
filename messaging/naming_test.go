package messaging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
	"github.com/typebus/typebus-go/serialization"
)

func TestNamingConvention(t *testing.T) {
	registry := serialization.NewTypeRegistry()
	require.NoError(t, registry.RegisterType(&orderCreated{}))

	t.Run("derives names from the type tag", func(t *testing.T) {
		naming := messaging.NewNamingConvention(registry, "bus")
		msg := newOrderCreated("order-1", 1)

		typeName, err := naming.TypeName(msg)
		require.NoError(t, err)
		assert.Equal(t, "orderCreated", typeName)

		queue, err := naming.QueueName(msg)
		require.NoError(t, err)
		assert.Equal(t, "bus.orderCreated", queue)

		topic, err := naming.TopicName(msg)
		require.NoError(t, err)
		assert.Equal(t, "orderCreated", topic)
	})

	t.Run("mapping is stable across calls", func(t *testing.T) {
		naming := messaging.NewNamingConvention(registry, "bus")

		first, err := naming.QueueName(newOrderCreated("a", 1))
		require.NoError(t, err)
		second, err := naming.QueueName(newOrderCreated("b", 2))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("custom prefix", func(t *testing.T) {
		naming := messaging.NewNamingConvention(registry, "orders")

		queue, err := naming.QueueName(newOrderCreated("order-1", 1))
		require.NoError(t, err)
		assert.Equal(t, "orders.orderCreated", queue)
	})

	t.Run("empty prefix defaults", func(t *testing.T) {
		naming := messaging.NewNamingConvention(registry, "")

		queue, err := naming.QueueName(newOrderCreated("order-1", 1))
		require.NoError(t, err)
		assert.Equal(t, "bus.orderCreated", queue)
	})

	t.Run("unregistered type", func(t *testing.T) {
		type strayEvent struct{ contracts.BaseMessage }
		naming := messaging.NewNamingConvention(registry, "bus")

		_, err := naming.QueueName(&strayEvent{})
		require.ErrorIs(t, err, contracts.ErrTypeNotRegistered)
	})

	t.Run("reply queue names are unique", func(t *testing.T) {
		naming := messaging.NewNamingConvention(registry, "bus")

		first := naming.ReplyQueueName()
		second := naming.ReplyQueueName()
		assert.NotEqual(t, first, second)
		assert.Contains(t, first, "bus.reply.")
	})
}
