// Package messaging implements the core dispatch and delivery-lifecycle
// engines of typebus.
//
// The engines are:
//   - NamingConvention: pure mapping from a registered message type to its
//     queue and topic names.
//   - MessagePublisher: resolves the destination from the message type,
//     serializes the body and hands an envelope to the transport. A
//     destination that does not exist makes the publish a silent no-op
//     reported through the receipt, not an error.
//   - MessageSubscriber: drives the per-delivery state machine. A received
//     message is deserialized (failure dead-letters it), handled under an
//     ants worker pool bounded by MaxConcurrentCalls with the peek-lock
//     renewed on a fixed interval, then settled with exactly one terminal
//     action: complete on success, abandon on fault or panic.
//   - Dispatcher: type-tag handler table for queues multiplexing several
//     message types, validated at registration time.
//   - RequestClient / RequestServer: request/response correlation over the
//     publish and receive paths, keyed by single-use correlation ids with a
//     timeout deadline per call.
//
// The broker itself is consumed through the Transport interface; concrete
// implementations live under transports/. No retry happens inside this
// package: redelivery is the transport's abandon mechanism, everything else
// is the caller's concern.
package messaging
