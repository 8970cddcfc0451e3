package serialization

import (
	"encoding/json"

	"github.com/typebus/typebus-go/contracts"
)

// Serializer converts typed messages to transport bytes and back
type Serializer interface {
	// Serialize encodes a message body for transport
	Serialize(msg contracts.Message) ([]byte, error)

	// Deserialize decodes a message body into the registered concrete type
	Deserialize(data []byte, typeName string) (contracts.Message, error)
}

// JSONSerializer is the default Serializer, encoding bodies as JSON and
// resolving concrete types through a TypeRegistry.
type JSONSerializer struct {
	registry TypeRegistry
}

// NewJSONSerializer creates a JSON serializer backed by the given registry
func NewJSONSerializer(registry TypeRegistry) *JSONSerializer {
	return &JSONSerializer{registry: registry}
}

// Serialize encodes a message body as JSON
func (s *JSONSerializer) Serialize(msg contracts.Message) ([]byte, error) {
	if msg == nil {
		return nil, &contracts.SerializationError{Op: "encode", TypeName: "<nil>", Err: contracts.ErrNilHandler}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, &contracts.SerializationError{Op: "encode", TypeName: msg.GetType(), Err: err}
	}
	return data, nil
}

// Deserialize decodes a JSON body into the registered concrete type
func (s *JSONSerializer) Deserialize(data []byte, typeName string) (contracts.Message, error) {
	msg, err := s.registry.NewInstance(typeName)
	if err != nil {
		return nil, &contracts.SerializationError{Op: "decode", TypeName: typeName, Err: err}
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &contracts.SerializationError{Op: "decode", TypeName: typeName, Err: err}
	}
	return msg, nil
}
