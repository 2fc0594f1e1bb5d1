package marshal

import (
	"database/sql"
	"fmt"
	"reflect"
)

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// objectCodec exchanges values with the driver without conversion. It is
// used when no other codec matches and for types implementing sql.Scanner.
type objectCodec struct{}

func (objectCodec) Decode(t reflect.Type, row Row, index int) (reflect.Value, error) {
	src := row.Column(index)
	if reflect.PointerTo(t).Implements(scannerType) {
		p := reflect.New(t)
		if err := p.Interface().(sql.Scanner).Scan(src); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: column %d into %s: %s", ErrMarshal, index, t, err)
		}
		return p.Elem(), nil
	}
	if src == nil {
		return reflect.Zero(t), nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(t):
		v := reflect.New(t).Elem()
		v.Set(sv)
		return v, nil
	case convertible(sv.Type(), t):
		return sv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: column %d: cannot assign %T to %s", ErrMarshal, index, src, t)
}

func (objectCodec) Encode(t reflect.Type, stmt Statement, index int, v reflect.Value) error {
	if isNull(v) {
		stmt.SetArg(index, nil)
		return nil
	}
	stmt.SetArg(index, v.Interface())
	return nil
}

// convertible excludes the numeric to string conversions reflect allows,
// which produce runes rather than digits.
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	if to.Kind() == reflect.String {
		return from.Kind() == reflect.String || (from.Kind() == reflect.Slice && from.Elem().Kind() == reflect.Uint8)
	}
	return true
}
