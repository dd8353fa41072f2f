package athenaudf

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func stringArray(vals ...*string) arrow.Array {
	b := array.NewStringBuilder(memory.DefaultAllocator)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(*v)
		}
	}
	return b.NewArray()
}

func int64Array(vals ...*int64) arrow.Array {
	b := array.NewInt64Builder(memory.DefaultAllocator)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(*v)
		}
	}
	return b.NewArray()
}

func int32Array(vals ...*int32) arrow.Array {
	b := array.NewInt32Builder(memory.DefaultAllocator)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(*v)
		}
	}
	return b.NewArray()
}

func float64Array(vals ...*float64) arrow.Array {
	b := array.NewFloat64Builder(memory.DefaultAllocator)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(*v)
		}
	}
	return b.NewArray()
}

func boolArray(vals ...*bool) arrow.Array {
	b := array.NewBooleanBuilder(memory.DefaultAllocator)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(*v)
		}
	}
	return b.NewArray()
}

func binaryArray(vals ...[]byte) arrow.Array {
	b := array.NewBinaryBuilder(memory.DefaultAllocator, arrow.BinaryTypes.Binary)
	defer b.Release()
	for _, v := range vals {
		if v == nil {
			b.AppendNull()
		} else {
			b.Append(v)
		}
	}
	return b.NewArray()
}

// col wraps an array into a Column; batchOf releases the array reference.
func col(t *testing.T, name string, arr arrow.Array) Column {
	t.Helper()
	c, err := NewColumn(name, arr)
	require.NoError(t, err)
	return c
}

// batchOf builds a Batch from columns, releasing the test's array references.
func batchOf(t *testing.T, cols ...Column) *Batch {
	t.Helper()
	b, err := NewBatch(cols)
	require.NoError(t, err)
	for _, c := range cols {
		c.Release()
	}
	t.Cleanup(b.Release)
	return b
}

// cellValues collects (value, isNull) pairs from a column as a []any with
// nil for null cells.
func cellValues(c Column) []any {
	out := make([]any, c.Len())
	for i := range out {
		v, isNull := c.Value(i)
		if isNull {
			out[i] = nil
		} else {
			out[i] = v
		}
	}
	return out
}
