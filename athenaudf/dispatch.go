// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Dispatch runs a function over every row of a batch and returns the output
// column, named outputName. The same generic row loop serves every arity;
// the signature length drives argument extraction.
//
// Validation happens up front: a column count mismatch is ArityMismatch and
// a column type mismatch is TypeMismatch, both before any row is processed.
// Per row, a null in any auto parameter short-circuits to a null output cell
// without invoking the function; nulls reaching explicit parameters are
// passed through as nil. A function error or panic aborts the whole batch
// with a FunctionExecutionError carrying the method name and row index.
func Dispatch(mem memory.Allocator, fn *Function, batch *Batch, outputName string) (Column, error) {
	if err := fn.sig.validate(batch, fn.name); err != nil {
		return Column{}, err
	}

	bld := newValueBuilder(mem, fn.sig.Return.Type)
	defer bld.Release()

	args := make([]any, fn.sig.Arity())
rows:
	for row := 0; row < batch.NumRows(); row++ {
		for i, p := range fn.sig.Params {
			v, isNull := batch.Column(i).Value(row)
			if isNull && p.Nullability == NullAuto {
				bld.AppendNull()
				continue rows
			}
			args[i] = v
		}

		result, err := fn.invoke(args)
		if err != nil {
			return Column{}, udfErrorf(KindFunctionExecution, fn.name, row,
				"method %q failed at row %d: %v", fn.name, row, err)
		}
		if result == nil {
			bld.AppendNull()
			continue
		}
		if err := bld.Append(result); err != nil {
			return Column{}, udfErrorf(KindFunctionExecution, fn.name, row,
				"method %q result at row %d: %v", fn.name, row, err)
		}
	}

	arr := bld.NewArray()
	return Column{Name: outputName, Type: fn.sig.Return.Type, data: arr}, nil
}
