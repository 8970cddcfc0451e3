package messaging_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typebus/typebus-go/messaging"
)

func TestDefaultBusConfig(t *testing.T) {
	cfg := messaging.DefaultBusConfig()

	assert.Equal(t, "bus", cfg.QueuePrefix)
	assert.Equal(t, 8, cfg.MaxConcurrentCalls)
	assert.Equal(t, 10, cfg.MaxDeliveryCount)
	assert.Equal(t, 30*time.Second, cfg.LockRenewalInterval)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestBusConfigFromEnv(t *testing.T) {
	t.Run("defaults without environment", func(t *testing.T) {
		cfg, err := messaging.BusConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, messaging.DefaultBusConfig(), cfg)
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("BUS_QUEUE_PREFIX", "orders")
		t.Setenv("BUS_MAX_CONCURRENT_CALLS", "3")
		t.Setenv("BUS_MAX_DELIVERY_COUNT", "5")
		t.Setenv("BUS_LOCK_RENEWAL_INTERVAL", "5s")
		t.Setenv("BUS_REQUEST_TIMEOUT", "90s")

		cfg, err := messaging.BusConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "orders", cfg.QueuePrefix)
		assert.Equal(t, 3, cfg.MaxConcurrentCalls)
		assert.Equal(t, 5, cfg.MaxDeliveryCount)
		assert.Equal(t, 5*time.Second, cfg.LockRenewalInterval)
		assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		t.Setenv("BUS_MAX_CONCURRENT_CALLS", "plenty")

		_, err := messaging.BusConfigFromEnv()
		require.Error(t, err)
	})
}
