package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/typebus/typebus-go/contracts"
)

// RequestResult is the asynchronous request outcome
type RequestResult struct {
	Response contracts.Response
	Err      error
}

// RequestClient layers request/response correlation over the publish and
// receive paths. Each request is stamped with a fresh correlation id and the
// client's reply queue; the pending table is resolved by the reply loop.
type RequestClient struct {
	publisher      *MessagePublisher
	subscriber     *MessageSubscriber
	logger         *slog.Logger
	replyQueue     string
	defaultTimeout time.Duration
	pending        map[string]chan contracts.Response
	mu             sync.Mutex
	replySub       *Subscription
}

// RequestClientOption configures the RequestClient
type RequestClientOption func(*RequestClient)

// WithReplyQueue sets the reply queue name; the default is a process-unique
// name from the naming convention
func WithReplyQueue(queue string) RequestClientOption {
	return func(c *RequestClient) {
		c.replyQueue = queue
	}
}

// WithRequestTimeout sets the default timeout applied when a call passes
// zero
func WithRequestTimeout(timeout time.Duration) RequestClientOption {
	return func(c *RequestClient) {
		c.defaultTimeout = timeout
	}
}

// WithRequestLogger sets the logger
func WithRequestLogger(logger *slog.Logger) RequestClientOption {
	return func(c *RequestClient) {
		c.logger = logger
	}
}

// NewRequestClient creates the reply queue, subscribes its reply loop and
// returns a client ready to issue requests.
func NewRequestClient(ctx context.Context, transport Transport, publisher *MessagePublisher, subscriber *MessageSubscriber, naming *NamingConvention, options ...RequestClientOption) (*RequestClient, error) {
	c := &RequestClient{
		publisher:      publisher,
		subscriber:     subscriber,
		logger:         slog.Default(),
		replyQueue:     naming.ReplyQueueName(),
		defaultTimeout: 30 * time.Second,
		pending:        make(map[string]chan contracts.Response),
	}

	for _, opt := range options {
		opt(c)
	}

	if err := transport.CreateQueue(ctx, c.replyQueue, QueueOptions{AutoDelete: true, Exclusive: true}); err != nil {
		return nil, &contracts.TransportError{Op: "create-queue", Destination: c.replyQueue, Err: err}
	}

	sub, err := subscriber.ReceiveFrom(ctx, c.replyQueue, MessageHandlerFunc(c.handleResponse))
	if err != nil {
		return nil, err
	}
	c.replySub = sub

	return c, nil
}

// ReplyQueue returns the client's reply queue name
func (c *RequestClient) ReplyQueue() string {
	return c.replyQueue
}

// Request sends a request and blocks until the correlated response arrives
// or the timeout elapses. A zero timeout uses the client default.
func (c *RequestClient) Request(ctx context.Context, req contracts.Request, timeout time.Duration) (contracts.Response, error) {
	result := <-c.RequestAsync(ctx, req, timeout)
	return result.Response, result.Err
}

// RequestAsync sends a request and returns a channel that yields the
// correlated response, a TimeoutError, or the context error.
func (c *RequestClient) RequestAsync(ctx context.Context, req contracts.Request, timeout time.Duration) <-chan RequestResult {
	out := make(chan RequestResult, 1)

	if req == nil {
		out <- RequestResult{Err: &contracts.ConfigurationError{Op: "request", Detail: "request cannot be nil"}}
		return out
	}
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	correlationID := uuid.New().String()
	req.SetCorrelationID(correlationID)
	req.SetReplyTo(c.replyQueue)

	responseCh := make(chan contracts.Response, 1)
	c.mu.Lock()
	c.pending[correlationID] = responseCh
	c.mu.Unlock()

	go func() {
		receipt, err := c.publisher.Publish(ctx, req)
		if err != nil {
			c.takePending(correlationID)
			out <- RequestResult{Err: err}
			return
		}
		if !receipt.Delivered {
			c.takePending(correlationID)
			out <- RequestResult{Err: &contracts.TransportError{
				Op:          "request",
				Destination: receipt.Destination,
				Err:         errors.New("destination not found"),
			}}
			return
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case resp := <-responseCh:
			out <- RequestResult{Response: resp}
		case <-timer.C:
			if _, ok := c.takePending(correlationID); !ok {
				// The reply loop won the race; the response is buffered.
				select {
				case resp := <-responseCh:
					out <- RequestResult{Response: resp}
					return
				default:
				}
			}
			out <- RequestResult{Err: &contracts.TimeoutError{CorrelationID: correlationID, Timeout: timeout}}
		case <-ctx.Done():
			c.takePending(correlationID)
			out <- RequestResult{Err: ctx.Err()}
		}
	}()

	return out
}

// takePending removes and returns the slot for a correlation id. Each id is
// removed exactly once, by whichever of the reply loop, timeout or
// cancellation path gets there first.
func (c *RequestClient) takePending(correlationID string) (chan contracts.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	return ch, ok
}

// PendingCalls returns the number of requests awaiting a response
func (c *RequestClient) PendingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// handleResponse resolves the pending call matching an incoming response's
// correlation id. A response with no matching call is discarded.
func (c *RequestClient) handleResponse(ctx context.Context, msg contracts.Message) error {
	correlationID := msg.GetCorrelationID()
	if correlationID == "" {
		c.logger.WarnContext(ctx, "discarding response without correlation id",
			"destination", c.replyQueue,
			"messageId", msg.GetID(),
		)
		return nil
	}

	responseCh, ok := c.takePending(correlationID)
	if !ok {
		c.logger.DebugContext(ctx, "discarding uncorrelated response",
			"destination", c.replyQueue,
			"messageId", msg.GetID(),
			"correlationId", correlationID,
		)
		return nil
	}

	resp, ok := msg.(contracts.Response)
	if !ok {
		c.logger.WarnContext(ctx, "discarding correlated non-response message",
			"destination", c.replyQueue,
			"messageId", msg.GetID(),
			"correlationId", correlationID,
		)
		return nil
	}

	responseCh <- resp
	return nil
}

// Close stops the reply loop. Outstanding requests fail by timeout.
func (c *RequestClient) Close() error {
	if c.replySub != nil {
		return c.subscriber.Unsubscribe(c.replyQueue)
	}
	return nil
}

// RequestServer subscribes to request queues and publishes responder
// results back to each request's embedded reply-to queue.
type RequestServer struct {
	publisher  *MessagePublisher
	subscriber *MessageSubscriber
	logger     *slog.Logger
}

// RequestServerOption configures the RequestServer
type RequestServerOption func(*RequestServer)

// WithServerLogger sets the logger
func WithServerLogger(logger *slog.Logger) RequestServerOption {
	return func(s *RequestServer) {
		s.logger = logger
	}
}

// NewRequestServer creates a new request server
func NewRequestServer(publisher *MessagePublisher, subscriber *MessageSubscriber, options ...RequestServerOption) *RequestServer {
	s := &RequestServer{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Respond subscribes to the request type's queue. Each request is handed to
// the responder; its result is sent to the request's reply-to queue stamped
// with the request's correlation id. A responder fault follows the abandon
// path so the broker's delivery-count retry applies.
func (s *RequestServer) Respond(ctx context.Context, prototype contracts.Message, responder Responder, options ...SubscriptionOption) (*Subscription, error) {
	if responder == nil {
		return nil, &contracts.ConfigurationError{Op: "respond", Detail: "responder", Err: contracts.ErrNilHandler}
	}

	handler := MessageHandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		req, ok := msg.(contracts.Request)
		if !ok {
			return &contracts.ConfigurationError{Op: "respond", Detail: "message does not implement Request"}
		}
		if req.GetReplyTo() == "" {
			return &contracts.ConfigurationError{Op: "respond", Detail: "request carries no reply-to queue"}
		}

		resp, err := responder.HandleRequest(ctx, req)
		if err != nil {
			return err
		}
		if resp == nil {
			return &contracts.ConfigurationError{Op: "respond", Detail: "responder returned nil response"}
		}

		resp.SetCorrelationID(req.GetCorrelationID())
		receipt, err := s.publisher.SendTo(ctx, req.GetReplyTo(), resp)
		if err != nil {
			return err
		}
		if !receipt.Delivered {
			return &contracts.TransportError{
				Op:          "respond",
				Destination: req.GetReplyTo(),
				Err:         errors.New("reply destination not found"),
			}
		}
		return nil
	})

	return s.subscriber.Subscribe(ctx, prototype, handler, options...)
}
