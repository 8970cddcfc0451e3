package serialization

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/typebus/typebus-go/contracts"
)

// TypeRegistry maps logical type names to Go types so message bodies can be
// deserialized back into their concrete types.
type TypeRegistry interface {
	// Register registers a message type under an explicit type name
	Register(typeName string, prototype contracts.Message) error

	// RegisterType registers a message type under its struct name
	RegisterType(prototype contracts.Message) error

	// TypeName returns the registered name for a message's type
	TypeName(msg contracts.Message) (string, error)

	// NewInstance creates a pointer to a fresh zero value of the named type
	NewInstance(typeName string) (contracts.Message, error)

	// IsRegistered reports whether a type name is known
	IsRegistered(typeName string) bool
}

// InMemoryTypeRegistry is the default TypeRegistry implementation
type InMemoryTypeRegistry struct {
	types map[string]reflect.Type
	names map[reflect.Type]string
	mu    sync.RWMutex
}

// NewTypeRegistry creates an empty type registry
func NewTypeRegistry() *InMemoryTypeRegistry {
	return &InMemoryTypeRegistry{
		types: make(map[string]reflect.Type),
		names: make(map[reflect.Type]string),
	}
}

// Register registers a message type under an explicit type name
func (r *InMemoryTypeRegistry) Register(typeName string, prototype contracts.Message) error {
	if typeName == "" {
		return &contracts.ConfigurationError{Op: "register", Detail: "type name cannot be empty"}
	}
	if prototype == nil {
		return &contracts.ConfigurationError{Op: "register", Detail: "prototype cannot be nil"}
	}

	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return &contracts.ConfigurationError{Op: "register", Detail: fmt.Sprintf("prototype must be a struct, got %v", t.Kind())}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return &contracts.ConfigurationError{Op: "register", Detail: fmt.Sprintf("type name %s already registered to %v", typeName, existing)}
	}

	r.types[typeName] = t
	r.names[t] = typeName
	return nil
}

// RegisterType registers a message type under its struct name
func (r *InMemoryTypeRegistry) RegisterType(prototype contracts.Message) error {
	if prototype == nil {
		return &contracts.ConfigurationError{Op: "register", Detail: "prototype cannot be nil"}
	}

	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return &contracts.ConfigurationError{Op: "register", Detail: fmt.Sprintf("cannot determine type name for %v", t)}
	}
	return r.Register(t.Name(), prototype)
}

// TypeName returns the registered name for a message's type
func (r *InMemoryTypeRegistry) TypeName(msg contracts.Message) (string, error) {
	if msg == nil {
		return "", &contracts.ConfigurationError{Op: "resolve", Detail: "message cannot be nil"}
	}

	t := reflect.TypeOf(msg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.names[t]
	if !exists {
		return "", &contracts.ConfigurationError{Op: "resolve", Detail: t.Name(), Err: contracts.ErrTypeNotRegistered}
	}
	return name, nil
}

// NewInstance creates a pointer to a fresh zero value of the named type
func (r *InMemoryTypeRegistry) NewInstance(typeName string) (contracts.Message, error) {
	r.mu.RLock()
	t, exists := r.types[typeName]
	r.mu.RUnlock()

	if !exists {
		return nil, &contracts.ConfigurationError{Op: "instantiate", Detail: typeName, Err: contracts.ErrTypeNotRegistered}
	}

	instance, ok := reflect.New(t).Interface().(contracts.Message)
	if !ok {
		return nil, &contracts.ConfigurationError{Op: "instantiate", Detail: fmt.Sprintf("%s does not implement Message", typeName)}
	}
	return instance, nil
}

// IsRegistered reports whether a type name is known
func (r *InMemoryTypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[typeName]
	return exists
}
