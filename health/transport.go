package health

import (
	"context"
	"time"

	"github.com/typebus/typebus-go/messaging"
)

// TransportChecker probes the broker through the transport's destination
// lookup. The probe queue does not have to exist; only a transport fault
// marks the check unhealthy.
type TransportChecker struct {
	transport  messaging.Transport
	probeQueue string
}

// NewTransportChecker creates a checker probing the given queue name
func NewTransportChecker(transport messaging.Transport, probeQueue string) *TransportChecker {
	if probeQueue == "" {
		probeQueue = "bus.health.probe"
	}
	return &TransportChecker{transport: transport, probeQueue: probeQueue}
}

// Name implements Checker
func (c *TransportChecker) Name() string {
	return "transport"
}

// Check implements Checker
func (c *TransportChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start.UTC(),
		Details:   map[string]any{"probeQueue": c.probeQueue},
	}

	exists, err := c.transport.LookupDestination(ctx, c.probeQueue)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "destination lookup failed"
		result.Error = err.Error()
		return result
	}

	result.Status = StatusHealthy
	result.Details["probeQueueExists"] = exists
	return result
}
