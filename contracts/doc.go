// Package contracts defines the message types and error taxonomy shared by
// all typebus packages.
//
// Messages embed BaseMessage (or BaseRequest/BaseResponse for the
// request/response pattern) to satisfy the Message interface:
//
//	type OrderCreated struct {
//		contracts.BaseMessage
//		OrderID string `json:"orderId"`
//	}
//
// Envelope is the wire unit handed to transports: the serialized body plus
// routing metadata (type tag, topic, correlation ID, reply-to).
//
// The error taxonomy distinguishes caller mistakes (ConfigurationError),
// undecodable bodies (SerializationError), broker faults (TransportError)
// and elapsed request deadlines (TimeoutError). Each wraps an underlying
// cause where one exists and participates in errors.Is/errors.As.
package contracts
