package messaging

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// BusConfig holds the facade-level defaults applied when a call does not
// override them.
type BusConfig struct {
	QueuePrefix         string        `env:"BUS_QUEUE_PREFIX" envDefault:"bus"`
	MaxConcurrentCalls  int           `env:"BUS_MAX_CONCURRENT_CALLS" envDefault:"8"`
	MaxDeliveryCount    int           `env:"BUS_MAX_DELIVERY_COUNT" envDefault:"10"`
	LockRenewalInterval time.Duration `env:"BUS_LOCK_RENEWAL_INTERVAL" envDefault:"30s"`
	RequestTimeout      time.Duration `env:"BUS_REQUEST_TIMEOUT" envDefault:"30s"`
}

// DefaultBusConfig returns the built-in defaults
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		QueuePrefix:         "bus",
		MaxConcurrentCalls:  8,
		MaxDeliveryCount:    10,
		LockRenewalInterval: 30 * time.Second,
		RequestTimeout:      30 * time.Second,
	}
}

// BusConfigFromEnv loads configuration from BUS_* environment variables,
// falling back to the built-in defaults.
func BusConfigFromEnv() (*BusConfig, error) {
	cfg := &BusConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse bus configuration: %w", err)
	}
	return cfg, nil
}
