package codec

import (
	"fmt"
	"sync"
)

// Enum is a named constant of a named type. On the wire it is the pair
// (EnumType, EnumName); the receiver resolves it through an EnumTable.
type Enum interface {
	EnumType() string
	EnumName() string
}

// EnumTable is the explicit name → constant table used to decode enums.
type EnumTable struct {
	mu    sync.RWMutex
	types map[string]map[string]Enum
}

func NewEnumTable() *EnumTable {
	return &EnumTable{types: make(map[string]map[string]Enum)}
}

// Register adds constants. A constant name may be registered once per type.
func (t *EnumTable) Register(values ...Enum) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range values {
		consts, ok := t.types[v.EnumType()]
		if !ok {
			consts = make(map[string]Enum)
			t.types[v.EnumType()] = consts
		}
		if _, dup := consts[v.EnumName()]; dup {
			return fmt.Errorf("codec: enum %s.%s registered twice", v.EnumType(), v.EnumName())
		}
		consts[v.EnumName()] = v
	}
	return nil
}

// Resolve finds a constant by type name and constant name.
func (t *EnumTable) Resolve(typeName, name string) (Enum, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: %s.%s (no enum table configured)", ErrUnknownEnum, typeName, name)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	consts, ok := t.types[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: type %q not found", ErrUnknownEnum, typeName)
	}
	v, ok := consts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no constant %q", ErrUnknownEnum, typeName, name)
	}
	return v, nil
}
