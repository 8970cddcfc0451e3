// Command typebus-demo runs a self-contained pub/sub and request/response
// round trip over the in-process transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	typebus "github.com/typebus/typebus-go"
	"github.com/typebus/typebus-go/contracts"
	"github.com/typebus/typebus-go/health"
	"github.com/typebus/typebus-go/messaging"
	"github.com/typebus/typebus-go/middleware"
	"github.com/typebus/typebus-go/transports/memory"
)

type OrderCreated struct {
	contracts.BaseMessage
	OrderID string `json:"orderId"`
}

type EchoRequest struct {
	contracts.BaseRequest
	Text string `json:"text"`
}

type EchoResponse struct {
	contracts.BaseResponse
	Text string `json:"text"`
}

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()

	cfg, err := messaging.BusConfigFromEnv()
	if err != nil {
		return err
	}

	transport := memory.NewTransport()
	bus, err := typebus.NewBus(transport,
		typebus.WithLogger(logger),
		typebus.WithConfig(cfg),
	)
	if err != nil {
		return err
	}
	defer bus.Close()

	for _, prototype := range []contracts.Message{&OrderCreated{}, &EchoRequest{}, &EchoResponse{}} {
		if err := bus.RegisterType(prototype); err != nil {
			return err
		}
	}

	// Publishing before anyone subscribes is a silent no-op.
	receipt, err := bus.Publish(ctx, &OrderCreated{
		BaseMessage: contracts.NewBaseMessage("OrderCreated"),
		OrderID:     "O0",
	})
	if err != nil {
		return err
	}
	logger.Info("publish without subscribers", "delivered", receipt.Delivered)

	done := make(chan string, 1)
	handler := middleware.NewChain(logger).
		Add(middleware.NewLoggingInterceptor(logger)).
		Add(middleware.NewDeadlineInterceptor(10 * time.Second)).
		Handler(messaging.MessageHandlerFunc(func(ctx context.Context, msg contracts.Message) error {
			order := msg.(*OrderCreated)
			done <- order.OrderID
			return nil
		}))
	sub, err := bus.Subscribe(ctx, &OrderCreated{}, handler)
	if err != nil {
		return err
	}
	defer sub.Close()

	receipt, err = bus.Publish(ctx, &OrderCreated{
		BaseMessage: contracts.NewBaseMessage("OrderCreated"),
		OrderID:     "O1",
	})
	if err != nil {
		return err
	}
	logger.Info("publish with subscriber", "delivered", receipt.Delivered)

	select {
	case orderID := <-done:
		logger.Info("order handled", "orderId", orderID)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for order delivery")
	}

	responder, err := bus.RespondFunc(ctx, &EchoRequest{},
		func(ctx context.Context, req contracts.Request) (contracts.Response, error) {
			echo := req.(*EchoRequest)
			return &EchoResponse{
				BaseResponse: contracts.NewBaseResponse("EchoResponse", req.GetCorrelationID()),
				Text:         strings.ToUpper(echo.Text),
			}, nil
		})
	if err != nil {
		return err
	}
	defer responder.Close()

	resp, err := bus.Request(ctx, &EchoRequest{
		BaseRequest: contracts.NewBaseRequest("EchoRequest"),
		Text:        "hello bus",
	}, 5*time.Second)
	if err != nil {
		return err
	}
	logger.Info("echo answered", "text", resp.(*EchoResponse).Text)

	checks := health.NewRegistry()
	checks.Register(health.NewTransportChecker(transport, "bus.OrderCreated"))
	overall := checks.Check(ctx)
	logger.Info("health", "status", overall.Status, "checks", len(overall.Checks))

	return nil
}
