// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"fmt"
	"reflect"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ValueType identifies one of the SQL value types supported by the protocol.
// The universe is closed: every column and every UDF parameter must carry one
// of these types, and each maps to exactly one Go type and one Arrow type.
type ValueType int

const (
	// Varchar maps to Go string and Arrow utf8.
	Varchar ValueType = iota
	// Bigint maps to Go int64 and Arrow int64.
	Bigint
	// Integer maps to Go int32 and Arrow int32.
	Integer
	// Double maps to Go float64 and Arrow float64.
	Double
	// Boolean maps to Go bool and Arrow bool.
	Boolean
	// Varbinary maps to Go []byte and Arrow binary.
	Varbinary
)

// String returns the SQL spelling of the type.
func (t ValueType) String() string {
	switch t {
	case Varchar:
		return "VARCHAR"
	case Bigint:
		return "BIGINT"
	case Integer:
		return "INTEGER"
	case Double:
		return "DOUBLE"
	case Boolean:
		return "BOOLEAN"
	case Varbinary:
		return "VARBINARY"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// ArrowType returns the Arrow DataType the value type is encoded as.
func (t ValueType) ArrowType() arrow.DataType {
	switch t {
	case Varchar:
		return arrow.BinaryTypes.String
	case Bigint:
		return arrow.PrimitiveTypes.Int64
	case Integer:
		return arrow.PrimitiveTypes.Int32
	case Double:
		return arrow.PrimitiveTypes.Float64
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Varbinary:
		return arrow.BinaryTypes.Binary
	}
	panic(fmt.Sprintf("athenaudf: invalid ValueType %d", int(t)))
}

// ValueTypeOf maps an Arrow DataType to its ValueType. Types outside the
// supported universe produce a TypeMismatch error.
func ValueTypeOf(dt arrow.DataType) (ValueType, error) {
	switch dt.ID() {
	case arrow.STRING:
		return Varchar, nil
	case arrow.INT64:
		return Bigint, nil
	case arrow.INT32:
		return Integer, nil
	case arrow.FLOAT64:
		return Double, nil
	case arrow.BOOL:
		return Boolean, nil
	case arrow.BINARY:
		return Varbinary, nil
	}
	return 0, udfErrorf(KindTypeMismatch, "", -1, "unsupported column type %v", dt)
}

var bytesType = reflect.TypeOf([]byte(nil))

// goType returns the canonical Go type for the value type.
func (t ValueType) goType() reflect.Type {
	switch t {
	case Varchar:
		return reflect.TypeOf("")
	case Bigint:
		return reflect.TypeOf(int64(0))
	case Integer:
		return reflect.TypeOf(int32(0))
	case Double:
		return reflect.TypeOf(float64(0))
	case Boolean:
		return reflect.TypeOf(false)
	case Varbinary:
		return bytesType
	}
	panic(fmt.Sprintf("athenaudf: invalid ValueType %d", int(t)))
}

// goValueType maps a Go reflect.Type to its ValueType. Only the exact Go
// representation of each value type is accepted; there is no coercion.
func goValueType(t reflect.Type) (ValueType, error) {
	if t == bytesType {
		return Varbinary, nil
	}
	switch t.Kind() {
	case reflect.String:
		return Varchar, nil
	case reflect.Int64:
		return Bigint, nil
	case reflect.Int32:
		return Integer, nil
	case reflect.Float64:
		return Double, nil
	case reflect.Bool:
		return Boolean, nil
	}
	return 0, fmt.Errorf("unsupported Go type %v", t)
}

// columnValue reads one cell from an Arrow array. The second return value
// reports whether the cell is null.
func columnValue(arr arrow.Array, row int) (any, bool) {
	if arr.IsNull(row) {
		return nil, true
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(row), false
	case *array.Int64:
		return a.Value(row), false
	case *array.Int32:
		return a.Value(row), false
	case *array.Float64:
		return a.Value(row), false
	case *array.Boolean:
		return a.Value(row), false
	case *array.Binary:
		return a.Value(row), false
	}
	return nil, true
}

// valueBuilder accumulates output cells for one ValueType.
type valueBuilder struct {
	typ ValueType
	b   array.Builder
}

func newValueBuilder(mem memory.Allocator, t ValueType) *valueBuilder {
	return &valueBuilder{typ: t, b: array.NewBuilder(mem, t.ArrowType())}
}

func (vb *valueBuilder) AppendNull() {
	vb.b.AppendNull()
}

// Append appends one non-nil Go value of the builder's type.
func (vb *valueBuilder) Append(v any) error {
	switch vb.typ {
	case Varchar:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		vb.b.(*array.StringBuilder).Append(s)
	case Bigint:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
		vb.b.(*array.Int64Builder).Append(n)
	case Integer:
		n, ok := v.(int32)
		if !ok {
			return fmt.Errorf("expected int32, got %T", v)
		}
		vb.b.(*array.Int32Builder).Append(n)
	case Double:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		vb.b.(*array.Float64Builder).Append(f)
	case Boolean:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		vb.b.(*array.BooleanBuilder).Append(bv)
	case Varbinary:
		data, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("expected []byte, got %T", v)
		}
		vb.b.(*array.BinaryBuilder).Append(data)
	}
	return nil
}

func (vb *valueBuilder) NewArray() arrow.Array {
	return vb.b.NewArray()
}

func (vb *valueBuilder) Release() {
	vb.b.Release()
}
