// Package typebus is a message-bus abstraction providing publish/subscribe,
// direct queue send/receive and request/response semantics over a managed
// queue/topic broker.
//
// Message types registered with the bus are routed by type: a message's
// registered type name determines its queue and topic through a naming
// convention, so application code never names broker entities for the
// common paths. The delivery lifecycle (peek-lock renewal, completion,
// abandonment, dead-lettering) is driven by the engines in the messaging
// package; brokers are plugged in through the messaging.Transport interface
// with implementations under transports/.
//
// Basic usage:
//
//	transport := memory.NewTransport()
//	bus, err := typebus.NewBus(transport)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer bus.Close()
//
//	_ = bus.RegisterType(&OrderCreated{})
//
//	sub, _ := bus.SubscribeFunc(ctx, &OrderCreated{},
//		func(ctx context.Context, msg contracts.Message) error {
//			order := msg.(*OrderCreated)
//			return process(order)
//		})
//	defer sub.Close()
//
//	receipt, err := bus.Publish(ctx, &OrderCreated{
//		BaseMessage: contracts.NewBaseMessage("OrderCreated"),
//		OrderID:     "O1",
//	})
//
// Publishing to a destination with no subscribers is not an error: the
// receipt reports Delivered=false and nothing is sent.
package typebus
