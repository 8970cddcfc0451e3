package messaging_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
	"github.com/typebus/typebus-go/serialization"
	"github.com/typebus/typebus-go/transports/memory"
)

type orderCreated struct {
	contracts.BaseMessage
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

func newOrderCreated(orderID string, amount float64) *orderCreated {
	return &orderCreated{
		BaseMessage: contracts.NewBaseMessage("orderCreated"),
		OrderID:     orderID,
		Amount:      amount,
	}
}

type paymentReceived struct {
	contracts.BaseMessage
	OrderID string `json:"orderId"`
}

func newPaymentReceived(orderID string) *paymentReceived {
	return &paymentReceived{
		BaseMessage: contracts.NewBaseMessage("paymentReceived"),
		OrderID:     orderID,
	}
}

type auditEvent struct {
	contracts.BaseMessage
	Action string `json:"action"`
}

type echoRequest struct {
	contracts.BaseRequest
	Text string `json:"text"`
}

func newEchoRequest(text string) *echoRequest {
	return &echoRequest{
		BaseRequest: contracts.NewBaseRequest("echoRequest"),
		Text:        text,
	}
}

type echoResponse struct {
	contracts.BaseResponse
	Echo string `json:"echo"`
}

func newEchoResponse(correlationID, echo string) *echoResponse {
	return &echoResponse{
		BaseResponse: contracts.NewBaseResponse("echoResponse", correlationID),
		Echo:         echo,
	}
}

// captureReporter records reported errors for assertions
type captureReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *captureReporter) ReportError(_ context.Context, _ string, _ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *captureReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *captureReporter) last() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

// busRig wires a publisher and subscriber over the in-process transport with
// the test message types registered.
type busRig struct {
	transport  *memory.Transport
	registry   *serialization.InMemoryTypeRegistry
	serializer serialization.Serializer
	naming     *messaging.NamingConvention
	publisher  *messaging.MessagePublisher
	subscriber *messaging.MessageSubscriber
	reporter   *captureReporter
}

func newBusRig(t *testing.T) *busRig {
	t.Helper()

	registry := serialization.NewTypeRegistry()
	require.NoError(t, registry.RegisterType(&orderCreated{}))
	require.NoError(t, registry.RegisterType(&paymentReceived{}))
	require.NoError(t, registry.RegisterType(&auditEvent{}))
	require.NoError(t, registry.RegisterType(&echoRequest{}))
	require.NoError(t, registry.RegisterType(&echoResponse{}))

	serializer := serialization.NewJSONSerializer(registry)
	naming := messaging.NewNamingConvention(registry, "bus")
	transport := memory.NewTransport()
	reporter := &captureReporter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rig := &busRig{
		transport:  transport,
		registry:   registry,
		serializer: serializer,
		naming:     naming,
		publisher:  messaging.NewMessagePublisher(transport, serializer, naming, messaging.WithPublisherLogger(logger)),
		subscriber: messaging.NewMessageSubscriber(transport, serializer, naming,
			messaging.WithSubscriberLogger(logger),
			messaging.WithSubscriberErrorReporter(reporter),
		),
		reporter: reporter,
	}

	t.Cleanup(func() {
		_ = rig.subscriber.Close()
		_ = rig.transport.Close()
	})

	return rig
}
