// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Request type discriminators carried in the "@type" field.
const (
	TypePingRequest  = "PingRequest"
	TypeUDFRequest   = "UserDefinedFunctionRequest"
	TypePingResponse = "PingResponse"
	TypeUDFResponse  = "UserDefinedFunctionResponse"
)

// Identity carries the caller's AWS identity attached to every request.
type Identity struct {
	ID        string `json:"id"`
	Principal string `json:"principal"`
	Account   string `json:"account"`
	Arn       string `json:"arn"`
}

// PingRequest is Athena's connectivity check, sent before any UDF work.
type PingRequest struct {
	Type        string   `json:"@type"`
	Identity    Identity `json:"identity"`
	CatalogName string   `json:"catalogName"`
	QueryID     string   `json:"queryId"`
}

// UDFRequest is one UDF invocation: a set of input record batches plus the
// method to apply and the expected output schema.
type UDFRequest struct {
	Type         string        `json:"@type"`
	Identity     Identity      `json:"identity"`
	InputRecords InputRecords  `json:"inputRecords"`
	OutputSchema EncodedSchema `json:"outputSchema"`
	MethodName   string        `json:"methodName"`
	FunctionType string        `json:"functionType"`
}

// InputRecords holds the input data as a split Arrow IPC stream: the schema
// message and the batch messages travel in separate base64 fields, and their
// concatenation parses as one IPC stream. encoding/json base64-codes []byte
// fields, matching the wire format.
type InputRecords struct {
	AID     string `json:"aId"`
	Schema  []byte `json:"schema"`
	Records []byte `json:"records"`
}

// EncodedSchema wraps a bare Arrow IPC schema message.
type EncodedSchema struct {
	Schema []byte `json:"schema"`
}

// Decode parses the schema message.
func (es EncodedSchema) Decode() (*arrow.Schema, error) {
	r, err := ipc.NewReader(bytes.NewReader(es.Schema))
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	defer r.Release()
	return r.Schema(), nil
}

// Decode concatenates the schema and record bytes and reads every record
// batch from the combined IPC stream. The returned batches are retained;
// the caller releases them.
func (in InputRecords) Decode(mem memory.Allocator) ([]arrow.RecordBatch, error) {
	combined := make([]byte, 0, len(in.Schema)+len(in.Records))
	combined = append(combined, in.Schema...)
	combined = append(combined, in.Records...)

	r, err := ipc.NewReader(bytes.NewReader(combined), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("reading input records: %w", err)
	}
	defer r.Release()

	var batches []arrow.RecordBatch
	for r.Next() {
		rec := r.RecordBatch()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		for _, b := range batches {
			b.Release()
		}
		return nil, fmt.Errorf("reading input batch: %w", err)
	}
	return batches, nil
}
