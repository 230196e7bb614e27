package hub

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Binder resolves the types the codec decodes values into.
// It is passed to every decode call.
type Binder interface {
	// ParameterTypes returns the ordered parameter types of target.
	// A nil entry decodes the argument into a dynamic value.
	ParameterTypes(target string) ([]reflect.Type, error)
	// ReturnType returns the type of the results or stream items expected
	// for invocationID.
	ReturnType(invocationID string) (reflect.Type, error)
}

// Errors returned by TypeRegistry.
var (
	ErrUnknownTarget       = errors.New("unknown target")
	ErrUnknownInvocationID = errors.New("unknown invocation id")
)

// TypeRegistry is a Binder backed by explicit registrations.
// It is safe for concurrent use.
type TypeRegistry struct {
	mu      sync.RWMutex
	targets map[string][]reflect.Type
	results map[string]reflect.Type
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		targets: make(map[string][]reflect.Type),
		results: make(map[string]reflect.Type),
	}
}

// RegisterTarget records the parameter types of target, replacing any earlier registration.
func (r *TypeRegistry) RegisterTarget(target string, types ...reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.targets[target] = types
}

// ExpectResult records the result type of an outstanding invocation.
func (r *TypeRegistry) ExpectResult(invocationID string, typ reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results[invocationID] = typ
}

// Forget drops the result type of a finished invocation.
func (r *TypeRegistry) Forget(invocationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.results, invocationID)
}

// ParameterTypes implements Binder.
func (r *TypeRegistry) ParameterTypes(target string) ([]reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types, ok := r.targets[target]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTarget, "target %q", target)
	}
	return types, nil
}

// ReturnType implements Binder.
func (r *TypeRegistry) ReturnType(invocationID string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typ, ok := r.results[invocationID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownInvocationID, "invocation %q", invocationID)
	}
	return typ, nil
}
