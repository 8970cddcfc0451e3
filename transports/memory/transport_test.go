package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/messaging"
)

func testEnvelope(id string) *contracts.Envelope {
	return &contracts.Envelope{
		ID:   id,
		Type: "testEvent",
		Body: json.RawMessage(`{}`),
	}
}

// collect subscribes on a queue and funnels deliveries into a channel
func collect(t *testing.T, tr *Transport, desc messaging.SubscriptionDescriptor) <-chan messaging.Delivery {
	t.Helper()

	out := make(chan messaging.Delivery, 16)
	handle, err := tr.Subscribe(context.Background(), desc, func(d messaging.Delivery) {
		out <- d
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return out
}

func receive(t *testing.T, ch <-chan messaging.Delivery) messaging.Delivery {
	t.Helper()

	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestTransportQueueLifecycle(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	exists, err := tr.LookupDestination(ctx, "q1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, tr.CreateQueue(ctx, "q1", messaging.QueueOptions{}))
	require.NoError(t, tr.CreateQueue(ctx, "q1", messaging.QueueOptions{})) // idempotent

	exists, err = tr.LookupDestination(ctx, "q1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTransportSendToMissingQueue(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })

	err := tr.Send(context.Background(), "nowhere", testEnvelope("m1"))
	require.ErrorIs(t, err, errQueueNotFound)
}

func TestTransportCompleteRemovesMessage(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	deliveries := collect(t, tr, messaging.SubscriptionDescriptor{Queue: "q1"})
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m1")))

	d := receive(t, deliveries)
	assert.Equal(t, "m1", d.Envelope().ID)
	assert.Equal(t, 1, d.DeliveryCount())
	require.NoError(t, d.Complete(ctx))

	assert.Equal(t, 0, tr.QueueDepth("q1"))
	select {
	case extra := <-deliveries:
		t.Fatalf("unexpected redelivery of %s", extra.Envelope().ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransportAbandonRedelivers(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	deliveries := collect(t, tr, messaging.SubscriptionDescriptor{Queue: "q1", MaxDeliveryCount: 3})
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m1")))

	first := receive(t, deliveries)
	assert.Equal(t, 1, first.DeliveryCount())
	require.NoError(t, first.Abandon(ctx))

	second := receive(t, deliveries)
	assert.Equal(t, "m1", second.Envelope().ID)
	assert.Equal(t, 2, second.DeliveryCount())
	require.NoError(t, second.Complete(ctx))
}

func TestTransportDeadLettersAfterMaxDeliveryCount(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	deliveries := collect(t, tr, messaging.SubscriptionDescriptor{Queue: "q1", MaxDeliveryCount: 2})
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m1")))

	require.NoError(t, receive(t, deliveries).Abandon(ctx))
	require.NoError(t, receive(t, deliveries).Abandon(ctx))

	dead := tr.DeadLettered("q1")
	require.Len(t, dead, 1)
	assert.Equal(t, "max delivery count exceeded", dead[0].Reason)
	assert.Equal(t, 2, dead[0].DeliveryCount)
	assert.Equal(t, 0, tr.QueueDepth("q1"))
}

func TestTransportDeadLetterStoresReason(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	deliveries := collect(t, tr, messaging.SubscriptionDescriptor{Queue: "q1"})
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m1")))

	require.NoError(t, receive(t, deliveries).DeadLetter(ctx, "undecodable message body"))

	dead := tr.DeadLettered("q1")
	require.Len(t, dead, 1)
	assert.Equal(t, "undecodable message body", dead[0].Reason)
	assert.Equal(t, "m1", dead[0].Envelope.ID)
}

func TestTransportSettleExactlyOnce(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	deliveries := collect(t, tr, messaging.SubscriptionDescriptor{Queue: "q1"})
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m1")))

	d := receive(t, deliveries)
	require.NoError(t, d.Complete(ctx))
	require.ErrorIs(t, d.Complete(ctx), errAlreadySettled)
	require.ErrorIs(t, d.Abandon(ctx), errAlreadySettled)
	require.ErrorIs(t, d.DeadLetter(ctx, "late"), errAlreadySettled)

	// A renewal after settling is counted and rejected.
	require.ErrorIs(t, d.RenewLock(ctx), errAlreadySettled)
	assert.Equal(t, int64(1), tr.LateRenewals())
}

func TestTransportDuplicateDetection(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	deliveries := collect(t, tr, messaging.SubscriptionDescriptor{Queue: "q1", DuplicateDetection: true})
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m1")))
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m1")))
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m2")))

	first := receive(t, deliveries)
	assert.Equal(t, "m1", first.Envelope().ID)
	second := receive(t, deliveries)
	assert.Equal(t, "m2", second.Envelope().ID)

	require.NoError(t, first.Complete(ctx))
	require.NoError(t, second.Complete(ctx))
	select {
	case extra := <-deliveries:
		t.Fatalf("duplicate %s was delivered", extra.Envelope().ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransportTopicFiltering(t *testing.T) {
	tr := NewTransport()
	t.Cleanup(func() { _ = tr.Close() })
	ctx := context.Background()

	deliveries := collect(t, tr, messaging.SubscriptionDescriptor{Queue: "q1", TopicFilters: []string{"orders"}})

	tagged := testEnvelope("m1")
	tagged.Topic = "payments"
	require.NoError(t, tr.Send(ctx, "q1", tagged))

	wanted := testEnvelope("m2")
	wanted.Topic = "orders"
	require.NoError(t, tr.Send(ctx, "q1", wanted))

	d := receive(t, deliveries)
	assert.Equal(t, "m2", d.Envelope().ID)
	require.NoError(t, d.Complete(ctx))

	// An untagged envelope always matches.
	require.NoError(t, tr.Send(ctx, "q1", testEnvelope("m3")))
	d = receive(t, deliveries)
	assert.Equal(t, "m3", d.Envelope().ID)
	require.NoError(t, d.Complete(ctx))
}

func TestTransportClose(t *testing.T) {
	tr := NewTransport()
	ctx := context.Background()

	require.NoError(t, tr.CreateQueue(ctx, "q1", messaging.QueueOptions{}))
	require.NoError(t, tr.Close())

	require.ErrorIs(t, tr.Send(ctx, "q1", testEnvelope("m1")), errClosed)
	require.ErrorIs(t, tr.CreateQueue(ctx, "q2", messaging.QueueOptions{}), errClosed)
}
