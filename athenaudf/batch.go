// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Column is one named, typed column of a Batch.
type Column struct {
	Name string
	Type ValueType
	data arrow.Array
}

// NewColumn wraps an Arrow array as a named column, deriving the ValueType
// from the array's Arrow type. Arrays outside the supported universe are a
// TypeMismatch error.
func NewColumn(name string, arr arrow.Array) (Column, error) {
	vt, err := ValueTypeOf(arr.DataType())
	if err != nil {
		return Column{}, udfErrorf(KindTypeMismatch, "", -1,
			"column %q: unsupported type %v", name, arr.DataType())
	}
	return Column{Name: name, Type: vt, data: arr}, nil
}

// Len returns the number of rows in the column.
func (c Column) Len() int {
	return c.data.Len()
}

// Value reads the cell at row. The second return value reports whether the
// cell is null; a null cell has a nil value.
func (c Column) Value(row int) (any, bool) {
	return columnValue(c.data, row)
}

// Data exposes the backing Arrow array.
func (c Column) Data() arrow.Array {
	return c.data
}

// Release drops the column's reference on its backing array.
func (c Column) Release() {
	c.data.Release()
}

// Batch is an immutable set of equal-length columns. It owns a reference on
// each column's backing array until Release is called.
type Batch struct {
	cols    []Column
	numRows int
}

// NewBatch assembles columns into a batch. All columns must have the same
// length; a mismatch is a MalformedBatch error and no batch is constructed.
// A batch with zero columns has zero rows.
func NewBatch(cols []Column) (*Batch, error) {
	numRows := 0
	if len(cols) > 0 {
		numRows = cols[0].Len()
	}
	for _, c := range cols {
		if c.Len() != numRows {
			return nil, udfErrorf(KindMalformedBatch, "", -1,
				"column %q has %d rows, expected %d", c.Name, c.Len(), numRows)
		}
	}
	for _, c := range cols {
		c.data.Retain()
	}
	return &Batch{cols: cols, numRows: numRows}, nil
}

// BatchFromRecord converts an Arrow record batch into a Batch, retaining its
// columns. A column whose Arrow type is outside the supported universe is a
// TypeMismatch error.
func BatchFromRecord(rec arrow.RecordBatch) (*Batch, error) {
	cols := make([]Column, rec.NumCols())
	for i := range cols {
		field := rec.Schema().Field(i)
		vt, err := ValueTypeOf(field.Type)
		if err != nil {
			return nil, udfErrorf(KindTypeMismatch, "", -1,
				"column %q: unsupported type %v", field.Name, field.Type)
		}
		cols[i] = Column{Name: field.Name, Type: vt, data: rec.Column(i)}
	}
	for _, c := range cols {
		c.data.Retain()
	}
	return &Batch{cols: cols, numRows: int(rec.NumRows())}, nil
}

// NumRows returns the number of rows shared by all columns.
func (b *Batch) NumRows() int {
	return b.numRows
}

// NumCols returns the number of columns.
func (b *Batch) NumCols() int {
	return len(b.cols)
}

// Column returns the i-th column.
func (b *Batch) Column(i int) Column {
	return b.cols[i]
}

// Release drops the batch's references on its column arrays.
func (b *Batch) Release() {
	for _, c := range b.cols {
		c.data.Release()
	}
	b.cols = nil
	b.numRows = 0
}
