// Package serialization converts typed messages to transport bytes and back.
//
// Concrete message types are registered with a TypeRegistry, keyed by their
// logical type name. The Serializer uses the registry on the decode side to
// instantiate the right concrete type for an incoming type tag. Both encode
// and decode failures are reported as contracts.SerializationError; a body
// that fails to decode can never be processed, so the delivery engine
// dead-letters it rather than retrying.
package serialization
