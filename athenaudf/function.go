// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"fmt"
	"reflect"
)

// Supported arity range for registered functions.
const (
	minArity = 1
	maxArity = 6
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Function is a registered UDF: a plain Go func together with the signature
// derived from its type. Functions are stateless from the dispatcher's point
// of view and must be safe to call repeatedly.
type Function struct {
	name         string
	sig          Signature
	fn           reflect.Value
	returnsError bool
}

// NewFunction derives a Function from a Go func. Accepted shapes are
//
//	func(p1 T1, ..., pn Tn) R
//	func(p1 T1, ..., pn Tn) (R, error)
//
// with 1 to 6 parameters over the supported value types. A pointer parameter
// or return type selects explicit null handling for that position.
func NewFunction(name string, fn any) (*Function, error) {
	if name == "" {
		return nil, fmt.Errorf("athenaudf: function name must not be empty")
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("athenaudf: registering %q: expected func, got %T", name, fn)
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("athenaudf: registering %q: variadic funcs are not supported", name)
	}
	if t.NumIn() < minArity || t.NumIn() > maxArity {
		return nil, fmt.Errorf("athenaudf: registering %q: arity %d out of range [%d, %d]",
			name, t.NumIn(), minArity, maxArity)
	}

	sig := Signature{Params: make([]Param, t.NumIn())}
	for i := range sig.Params {
		p, err := paramOf(t.In(i))
		if err != nil {
			return nil, fmt.Errorf("athenaudf: registering %q: parameter %d: %w", name, i, err)
		}
		sig.Params[i] = p
	}

	returnsError := false
	switch t.NumOut() {
	case 1:
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("athenaudf: registering %q: second return value must be error, got %v",
				name, t.Out(1))
		}
		returnsError = true
	default:
		return nil, fmt.Errorf("athenaudf: registering %q: func must return R or (R, error)", name)
	}
	ret, err := paramOf(t.Out(0))
	if err != nil {
		return nil, fmt.Errorf("athenaudf: registering %q: return value: %w", name, err)
	}
	sig.Return = ret

	return &Function{name: name, sig: sig, fn: v, returnsError: returnsError}, nil
}

// MustFunction is NewFunction that panics on invalid registration.
func MustFunction(name string, fn any) *Function {
	f, err := NewFunction(name, fn)
	if err != nil {
		panic(err.Error())
	}
	return f
}

// paramOf maps a Go parameter or return type to its Param descriptor.
// Pointer types select explicit null handling.
func paramOf(t reflect.Type) (Param, error) {
	nullability := NullAuto
	if t.Kind() == reflect.Ptr {
		nullability = NullExplicit
		t = t.Elem()
	}
	vt, err := goValueType(t)
	if err != nil {
		return Param{}, err
	}
	return Param{Type: vt, Nullability: nullability}, nil
}

// Name returns the registered method name.
func (f *Function) Name() string {
	return f.name
}

// Signature returns the derived signature.
func (f *Function) Signature() Signature {
	return f.sig
}

// invoke calls the wrapped func with one row of arguments. Each args element
// is the Go value for its parameter, or nil for a null reaching an explicit
// parameter. The result is nil when an explicit return produced a null.
// Panics inside the func are recovered and reported as errors.
func (f *Function) invoke(args []any) (result any, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			err = fmt.Errorf("panic: %v", rv)
		}
	}()

	t := f.fn.Type()
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if f.sig.Params[i].Nullability == NullExplicit {
			if arg == nil {
				in[i] = reflect.Zero(t.In(i))
			} else {
				ptr := reflect.New(t.In(i).Elem())
				ptr.Elem().Set(reflect.ValueOf(arg).Convert(t.In(i).Elem()))
				in[i] = ptr
			}
		} else {
			in[i] = reflect.ValueOf(arg).Convert(t.In(i))
		}
	}

	out := f.fn.Call(in)
	if f.returnsError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}

	rv := out[0]
	if f.sig.Return.Nullability == NullExplicit {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	return rv.Convert(f.sig.Return.Type.goType()).Interface(), nil
}
