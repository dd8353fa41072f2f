// SPDX-License-Identifier: Apache-2.0

package athenaudf

import "strings"

// Nullability selects how nulls reach a UDF parameter or leave its return
// value.
type Nullability int

const (
	// NullAuto means the function never sees a null: if any auto parameter
	// is null for a row, the row's output is null and the function is not
	// invoked.
	NullAuto Nullability = iota
	// NullExplicit means the function observes null presence itself: the
	// parameter arrives as a nil pointer, or the return may be nil to
	// produce a null output.
	NullExplicit
)

// Param describes one UDF parameter or the return value.
type Param struct {
	Type        ValueType
	Nullability Nullability
}

// String renders the param as its SQL type, with a "?" suffix for explicit
// null handling.
func (p Param) String() string {
	if p.Nullability == NullExplicit {
		return p.Type.String() + "?"
	}
	return p.Type.String()
}

// Signature is the declared shape of a UDF: its parameter list and return.
// Null policy is carried per position, so auto and explicit parameters mix
// freely within one signature.
type Signature struct {
	Params []Param
	Return Param
}

// Arity returns the number of parameters.
func (s Signature) Arity() int {
	return len(s.Params)
}

// String renders the signature like "(VARCHAR, BIGINT?) -> VARCHAR".
func (s Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ") -> " + s.Return.String()
}

// validate checks a batch against the signature before any row is touched.
// Column count must equal the arity, and each column type must match the
// declared parameter type exactly.
func (s Signature) validate(b *Batch, method string) error {
	if b.NumCols() != s.Arity() {
		return udfErrorf(KindArityMismatch, method, -1,
			"method %q takes %d arguments, batch has %d columns",
			method, s.Arity(), b.NumCols())
	}
	for i, p := range s.Params {
		if col := b.Column(i); col.Type != p.Type {
			return udfErrorf(KindTypeMismatch, method, -1,
				"method %q argument %d: declared %s, column %q is %s",
				method, i, p.Type, col.Name, col.Type)
		}
	}
	return nil
}
