package codec

import (
	"fmt"
	"reflect"
	"sync"
)

// Transferable is a value that serializes its own fields through the
// object codec. TransferFrom must read fields in exactly the order
// TransferTo wrote them; embedded bases go first.
type Transferable interface {
	TransferTo(w *Writer) error
	TransferFrom(r *Reader) error
}

// Registry maps small integer ids to Transferable factories and back.
//
// Populate a registry during startup before traffic flows. Lookups are
// guarded by a RWMutex so late registration is still safe, but a decoder
// that meets an id before its factory is registered fails the decode.
type Registry struct {
	name      string
	mu        sync.RWMutex
	factories map[int32]func() Transferable
	ids       map[reflect.Type]int32
}

// NewRegistry creates an empty registry; name appears in errors and logs.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:      name,
		factories: make(map[int32]func() Transferable),
		ids:       make(map[reflect.Type]int32),
	}
}

func (r *Registry) Name() string { return r.name }

// Register binds id to factory. The concrete type produced by factory is
// recorded so the encoder can find the id of a value. Duplicate ids and
// duplicate types are rejected.
func (r *Registry) Register(id int32, factory func() Transferable) error {
	if factory == nil {
		return fmt.Errorf("codec: %s registry: nil factory for id %d", r.name, id)
	}
	probe := factory()
	if probe == nil {
		return fmt.Errorf("codec: %s registry: factory for id %d returned nil", r.name, id)
	}
	typ := reflect.TypeOf(probe)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[id]; ok {
		return fmt.Errorf("%w: %s registry already has id %d", ErrDuplicateID, r.name, id)
	}
	if prev, ok := r.ids[typ]; ok {
		return fmt.Errorf("%w: %s registry already has %s as id %d", ErrDuplicateID, r.name, typ, prev)
	}
	r.factories[id] = factory
	r.ids[typ] = id
	return nil
}

// MustRegister is Register for package-level setup; it panics on error.
func (r *Registry) MustRegister(id int32, factory func() Transferable) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Create returns a fresh instance for id. A missing id is always an error.
func (r *Registry) Create(id int32) (Transferable, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %d (no registry configured)", ErrUnknownID, id)
	}
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s registry id %d", ErrUnknownID, r.name, id)
	}
	return factory(), nil
}

// IDOf returns the id registered for the concrete type of v.
func (r *Registry) IDOf(v Transferable) (int32, bool) {
	if r == nil || v == nil {
		return 0, false
	}
	r.mu.RLock()
	id, ok := r.ids[reflect.TypeOf(v)]
	r.mu.RUnlock()
	return id, ok
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
