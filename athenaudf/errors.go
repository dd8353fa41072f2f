package athenaudf

import "fmt"

// Error kind constants for UDFError.Kind.
const (
	KindMalformedBatch    = "MalformedBatch"
	KindArityMismatch     = "ArityMismatch"
	KindTypeMismatch      = "TypeMismatch"
	KindUnknownFunction   = "UnknownFunction"
	KindFunctionExecution = "FunctionExecutionError"
)

// ErrUDF is a sentinel for use with errors.Is to check whether any error in a
// chain is a *UDFError.
var ErrUDF = &UDFError{}

// UDFError represents a protocol or dispatch error surfaced to the caller.
type UDFError struct {
	Kind    string // one of the Kind* constants
	Message string
	Method  string // method name, empty when not method-scoped
	Row     int    // row index, -1 when not row-scoped
}

func (e *UDFError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is supports errors.Is by matching any *UDFError target.
func (e *UDFError) Is(target error) bool {
	_, ok := target.(*UDFError)
	return ok
}

// udfErrorf builds a *UDFError with a formatted message.
func udfErrorf(kind, method string, row int, format string, args ...any) *UDFError {
	return &UDFError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Method:  method,
		Row:     row,
	}
}
