// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package marshal

import (
	"reflect"
	"sync"
)

// Registry resolves the Marshaler of a type. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	// custom holds the codecs set explicitly or declared by a type.
	custom map[reflect.Type]Marshaler
	// registered records the types whose declaration has been inspected.
	registered map[reflect.Type]bool

	scalars    map[reflect.Type]Marshaler
	kinds      map[reflect.Kind]Marshaler
	collection Marshaler
	enum       Marshaler
	object     Marshaler
}

// NewRegistry returns a registry knowing only the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{
		custom:     map[reflect.Type]Marshaler{},
		registered: map[reflect.Type]bool{},
		scalars:    builtinScalars(),
		enum:       enumCodec{},
		object:     objectCodec{},
	}
	r.kinds = kindScalars(r.scalars)
	r.collection = collectionCodec{reg: r}
	return r
}

// Set associates m with t, replacing any codec t had.
func (r *Registry) Set(t reflect.Type, m Marshaler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[t] = m
	r.registered[t] = true
}

// Register inspects t for a codec declaration, then registers the types of
// its exported fields and of its elements. Registering a type twice has no
// further effect.
func (r *Registry) Register(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(t)
}

func (r *Registry) register(t reflect.Type) {
	if t == nil || r.registered[t] {
		return
	}
	r.registered[t] = true

	if m, ok := r.declared(t); ok {
		r.custom[t] = m
		return
	}

	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		r.register(t.Elem())
	case reflect.Map:
		r.register(t.Key())
		r.register(t.Elem())
	case reflect.Struct:
		if _, ok := r.scalars[t]; ok {
			return
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() || f.Anonymous {
				r.register(f.Type)
			}
		}
	}
}

// declared returns the codec a type declares for itself.
func (r *Registry) declared(t reflect.Type) (Marshaler, bool) {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return nil, false
	}
	if _, ok := r.scalars[t]; ok {
		return nil, false
	}
	switch {
	case t.Implements(providerType):
		return reflect.Zero(t).Interface().(Provider).SQLMarshaler(), true
	case reflect.PointerTo(t).Implements(providerType):
		return reflect.New(t).Interface().(Provider).SQLMarshaler(), true
	case reflect.PointerTo(t).Implements(scannerType):
		return r.object, true
	}
	return nil, false
}

// Find returns the codec of t or nil if t has none. Custom codecs take
// precedence over collections, arrays, enums and finally scalars.
func (r *Registry) Find(t reflect.Type) Marshaler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.find(t)
}

func (r *Registry) find(t reflect.Type) Marshaler {
	if m, ok := r.custom[t]; ok {
		return m
	}
	switch t.Kind() {
	case reflect.Pointer:
		if em := r.find(t.Elem()); em != nil {
			return nullable{elem: em}
		}
		return nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return r.scalars[reflect.TypeOf([]byte(nil))]
		}
		return r.collection
	case reflect.Map:
		if isSet(t) {
			return r.collection
		}
		return nil
	case reflect.Array:
		return r.collection
	}
	if t.Implements(enumType) || reflect.PointerTo(t).Implements(enumType) {
		return r.enum
	}
	if m, ok := r.scalars[t]; ok {
		return m
	}
	return r.kinds[t.Kind()]
}

// Lookup returns the codec of t, falling back to the object codec.
func (r *Registry) Lookup(t reflect.Type) Marshaler {
	if m := r.Find(t); m != nil {
		return m
	}
	return r.object
}

// Object returns the generic object codec.
func (r *Registry) Object() Marshaler {
	return r.object
}
