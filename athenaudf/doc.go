// SPDX-License-Identifier: Apache-2.0

// Package athenaudf implements the AWS Athena Lambda UDF protocol for Go.
//
// Athena invokes scalar UDFs by sending JSON-enveloped requests whose payload
// is a set of Apache Arrow record batches. This package decodes those
// batches, dispatches plain Go functions row by row, and encodes the result
// column back into the response envelope.
//
// A UDF is an ordinary Go function over the supported value types (string,
// int64, int32, float64, bool, []byte). Pointer parameters opt in to
// explicit null handling; with value parameters a null in any argument
// short-circuits the row to a null output without calling the function.
//
//	reg := athenaudf.NewRegistry(
//	    athenaudf.MustFunction("string_reverse", func(s string) string { ... }),
//	    athenaudf.MustFunction("add_numbers", func(a, b int64) int64 { return a + b }),
//	)
//	athenaudf.NewHandler(reg).Start()
package athenaudf
