// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Capability constants reported in PingResponse. The values are fixed by the
// Athena UDF serde.
const (
	pingCapabilities = 23
	pingSerdeVersion = 5
	sourceType       = "athena_udf_go"
)

// PingResponse answers a PingRequest, echoing the catalog and query and
// reporting the handler's serde capabilities.
type PingResponse struct {
	Type         string `json:"@type"`
	CatalogName  string `json:"catalogName"`
	QueryID      string `json:"queryId"`
	SourceType   string `json:"sourceType"`
	Capabilities int    `json:"capabilities"`
	SerdeVersion int    `json:"serdeVersion"`
}

// NewPingResponse builds the response for a ping request.
func NewPingResponse(req PingRequest) PingResponse {
	return PingResponse{
		Type:         TypePingResponse,
		CatalogName:  req.CatalogName,
		QueryID:      req.QueryID,
		SourceType:   sourceType,
		Capabilities: pingCapabilities,
		SerdeVersion: pingSerdeVersion,
	}
}

// UDFResponse carries the output batches for one UDF invocation.
type UDFResponse struct {
	Type       string        `json:"@type"`
	MethodName string        `json:"methodName"`
	Records    OutputRecords `json:"records"`
}

// OutputRecords is the output side of the split IPC encoding: schema message
// and batch messages in separate base64 fields.
type OutputRecords struct {
	AID     string `json:"aId"`
	Schema  []byte `json:"schema"`
	Records []byte `json:"records"`
}

// ipcEndOfStream is the trailing end-of-stream marker an IPC stream writer
// emits on Close: a continuation marker followed by a zero length.
const ipcEndOfStream = 8

// serializeSchema encodes a schema as a bare IPC schema message, without the
// end-of-stream marker.
func serializeSchema(schema *arrow.Schema, mem memory.Allocator) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("serializing schema: %w", err)
	}
	if buf.Len() < ipcEndOfStream {
		return nil, fmt.Errorf("serializing schema: short IPC stream (%d bytes)", buf.Len())
	}
	return buf.Bytes()[:buf.Len()-ipcEndOfStream], nil
}

// EncodeRecords splits batches into the schema/records representation used
// on the wire. The record bytes carry only the batch messages; prefixing
// them with the schema bytes reconstructs a full IPC stream.
func EncodeRecords(aID string, schema *arrow.Schema, batches []arrow.RecordBatch, mem memory.Allocator) (OutputRecords, error) {
	schemaBytes, err := serializeSchema(schema, mem)
	if err != nil {
		return OutputRecords{}, err
	}

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	for _, b := range batches {
		if err := w.Write(b); err != nil {
			return OutputRecords{}, fmt.Errorf("serializing output batch: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return OutputRecords{}, fmt.Errorf("serializing output batches: %w", err)
	}
	stream := buf.Bytes()
	if len(stream) < len(schemaBytes)+ipcEndOfStream || !bytes.Equal(stream[:len(schemaBytes)], schemaBytes) {
		return OutputRecords{}, fmt.Errorf("serializing output batches: schema prefix mismatch")
	}

	return OutputRecords{
		AID:     aID,
		Schema:  schemaBytes,
		Records: stream[len(schemaBytes) : len(stream)-ipcEndOfStream],
	}, nil
}

// NewUDFResponse assembles the response envelope for a set of output batches.
func NewUDFResponse(methodName, aID string, schema *arrow.Schema, batches []arrow.RecordBatch, mem memory.Allocator) (UDFResponse, error) {
	records, err := EncodeRecords(aID, schema, batches, mem)
	if err != nil {
		return UDFResponse{}, err
	}
	return UDFResponse{
		Type:       TypeUDFResponse,
		MethodName: methodName,
		Records:    records,
	}, nil
}
