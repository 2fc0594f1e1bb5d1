// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Argument is a constructor argument read from a column.
type Argument struct {
	Column string
	Type   reflect.Type
}

// Plan describes how to build a value of a type from a row: the arguments
// of its constructor followed by the properties set after construction.
type Plan struct {
	Type  reflect.Type
	Args  []Argument
	Props []*Property

	// ctor is the designated constructor. Without one the zero value is used.
	ctor reflect.Value
}

// New constructs a value from the constructor arguments. The returned value
// is addressable so that properties can be set on it.
func (p *Plan) New(args []reflect.Value) (reflect.Value, error) {
	v := reflect.New(p.Type).Elem()
	if !p.ctor.IsValid() {
		return v, nil
	}
	if len(args) != len(p.Args) {
		return reflect.Value{}, errors.Errorf("internal error: constructor of %s takes %d arguments, got %d", p.Type, len(p.Args), len(args))
	}
	out := p.ctor.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, errors.Wrapf(out[1].Interface().(error), "cannot construct %s", p.Type)
	}
	res := out[0]
	if res.Kind() == reflect.Pointer && res.Type().Elem() == p.Type {
		if res.IsNil() {
			return reflect.Value{}, errors.Errorf("constructor of %s returned nil", p.Type)
		}
		return res.Elem(), nil
	}
	v.Set(res)
	return v, nil
}

type designation struct {
	fn      reflect.Value
	columns []string
}

// Plans builds and caches one Plan per type. Plans is safe for concurrent
// use.
type Plans struct {
	mu         sync.RWMutex
	designated map[reflect.Type]designation
	plans      map[reflect.Type]*Plan
}

func NewPlans() *Plans {
	return &Plans{
		designated: map[reflect.Type]designation{},
		plans:      map[reflect.Type]*Plan{},
	}
}

// Designate registers fn as the constructor of the type it returns. fn must
// be a function returning T, *T, (T, error) or (*T, error). Its parameters
// are read from the given columns, in order.
func (ps *Plans) Designate(fn any, columns ...string) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return errors.Errorf("constructor must be a function, got %T", fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return errors.New("constructor cannot be variadic")
	}
	if ft.NumIn() != len(columns) {
		return errors.Errorf("constructor takes %d arguments but %d columns were given", ft.NumIn(), len(columns))
	}
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return errors.Errorf("constructor must return a value and optionally an error, got %s", ft)
	}
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return errors.New("empty constructor column name")
		}
	}

	t := ft.Out(0)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.plans[t]; ok {
		return errors.Errorf("cannot designate constructor of %s after it has been used", t)
	}
	ps.designated[t] = designation{fn: fv, columns: columns}
	return nil
}

// Get returns the plan of t, building it on first use.
func (ps *Plans) Get(t reflect.Type) (*Plan, error) {
	ps.mu.RLock()
	p, ok := ps.plans[t]
	ps.mu.RUnlock()
	if ok {
		return p, nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok := ps.plans[t]; ok {
		return p, nil
	}
	p, err := ps.build(t)
	if err != nil {
		return nil, err
	}
	ps.plans[t] = p
	return p, nil
}

func (ps *Plans) build(t reflect.Type) (*Plan, error) {
	p := &Plan{Type: t}
	claimed := map[string]bool{}
	if d, ok := ps.designated[t]; ok {
		p.ctor = d.fn
		for i, c := range d.columns {
			p.Args = append(p.Args, Argument{Column: c, Type: d.fn.Type().In(i)})
			claimed[strings.ToLower(c)] = true
		}
	}
	if t.Kind() != reflect.Struct {
		return p, nil
	}

	info, err := GetTypeInfo(t)
	if err != nil {
		return nil, err
	}
	for _, prop := range info.Fields() {
		if claimed[strings.ToLower(prop.Column)] {
			continue
		}
		p.Props = append(p.Props, prop)
	}
	return p, nil
}
