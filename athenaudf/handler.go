// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// Handler routes Athena request envelopes to a function registry. It is
// stateless per invocation and safe for concurrent use.
type Handler struct {
	registry     *Registry
	dispatchHook DispatchHook
	logger       *slog.Logger
	mem          memory.Allocator
}

// NewHandler creates a handler serving the given registry.
func NewHandler(registry *Registry) *Handler {
	return &Handler{
		registry: registry,
		logger:   slog.Default(),
		mem:      memory.DefaultAllocator,
	}
}

// SetDispatchHook registers a hook that is called around each UDF dispatch.
func (h *Handler) SetDispatchHook(hook DispatchHook) {
	h.dispatchHook = hook
}

// SetLogger replaces the handler's logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	h.logger = logger
}

// SetAllocator replaces the Arrow allocator used for decode and dispatch.
func (h *Handler) SetAllocator(mem memory.Allocator) {
	h.mem = mem
}

// Start runs the handler under the AWS Lambda runtime. It blocks until the
// runtime shuts the process down.
func (h *Handler) Start() {
	lambda.Start(h.Handle)
}

// envelope probes the fields needed for routing before the full payload is
// decoded.
type envelope struct {
	Type string  `json:"@type"`
	Body *string `json:"body"`
}

// Handle processes one raw Lambda payload and returns the raw response.
// Payloads arriving through a Function URL or API Gateway carry the request
// JSON in a "body" field; those are unwrapped first and the response is
// wrapped back into an HTTP response structure. Errors are returned to the
// Lambda runtime, which reports them to Athena.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("parsing request envelope: %w", err)
	}

	httpWrapped := false
	if env.Body != nil {
		httpWrapped = true
		payload = json.RawMessage(*env.Body)
		env = envelope{}
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("parsing wrapped request body: %w", err)
		}
	}

	var response any
	switch env.Type {
	case TypePingRequest:
		var req PingRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("parsing ping request: %w", err)
		}
		h.logger.DebugContext(ctx, "ping", "catalog", req.CatalogName, "query_id", req.QueryID)
		response = NewPingResponse(req)

	case TypeUDFRequest:
		var req UDFRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("parsing udf request: %w", err)
		}
		resp, err := h.handleUDF(ctx, &req, httpWrapped)
		if err != nil {
			h.logger.ErrorContext(ctx, "udf request failed", "method", req.MethodName, "err", err)
			return nil, err
		}
		response = resp

	default:
		return nil, fmt.Errorf("unknown request type %q", env.Type)
	}

	body, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("serializing response: %w", err)
	}
	if httpWrapped {
		return wrapHTTPResponse(body)
	}
	return body, nil
}

// wrapHTTPResponse wraps a response body for a Function URL invocation.
func wrapHTTPResponse(body []byte) (json.RawMessage, error) {
	wrapped, err := json.Marshal(events.LambdaFunctionURLResponse{
		StatusCode:      200,
		Headers:         map[string]string{"content-type": "application/json"},
		Body:            string(body),
		Cookies:         []string{},
		IsBase64Encoded: false,
	})
	if err != nil {
		return nil, fmt.Errorf("wrapping http response: %w", err)
	}
	return wrapped, nil
}

// handleUDF decodes the input batches, dispatches the registered function
// over each of them, and encodes the output batches into the response.
func (h *Handler) handleUDF(ctx context.Context, req *UDFRequest, httpWrapped bool) (*UDFResponse, error) {
	fn, err := h.registry.Lookup(req.MethodName)
	if err != nil {
		return nil, err
	}

	outputSchema, err := req.OutputSchema.Decode()
	if err != nil {
		return nil, err
	}
	if outputSchema.NumFields() == 0 {
		return nil, udfErrorf(KindMalformedBatch, req.MethodName, -1,
			"output schema for %q has no fields", req.MethodName)
	}
	outputField := outputSchema.Field(0)
	outputType, err := ValueTypeOf(outputField.Type)
	if err != nil {
		return nil, err
	}
	if outputType != fn.sig.Return.Type {
		return nil, udfErrorf(KindTypeMismatch, req.MethodName, -1,
			"method %q returns %s, output schema declares %s",
			req.MethodName, fn.sig.Return.Type, outputType)
	}

	inputBatches, err := req.InputRecords.Decode(h.mem)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, b := range inputBatches {
			b.Release()
		}
	}()

	info := DispatchInfo{
		Method:       req.MethodName,
		FunctionType: req.FunctionType,
		Account:      req.Identity.Account,
		Arn:          req.Identity.Arn,
		HTTPWrapped:  httpWrapped,
	}

	var hookToken HookToken
	var hookActive bool
	stats := &CallStatistics{}

	if h.dispatchHook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					h.logger.ErrorContext(ctx, "dispatch hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, hookToken = h.dispatchHook.OnDispatchStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	outputBatches, dispatchErr := h.dispatchAll(fn, inputBatches, outputSchema, outputField.Name, stats)
	defer func() {
		for _, b := range outputBatches {
			b.Release()
		}
	}()

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					h.logger.ErrorContext(ctx, "dispatch hook end panic", "err", rv)
				}
			}()
			h.dispatchHook.OnDispatchEnd(ctx, hookToken, info, stats, dispatchErr)
		}()
	}

	if dispatchErr != nil {
		return nil, dispatchErr
	}

	h.logger.DebugContext(ctx, "dispatched",
		"method", req.MethodName,
		"input_batches", stats.InputBatches,
		"input_rows", stats.InputRows,
		"output_rows", stats.OutputRows)

	resp, err := NewUDFResponse(req.MethodName, req.InputRecords.AID, outputSchema, outputBatches, h.mem)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// dispatchAll runs the function over every input record batch.
func (h *Handler) dispatchAll(fn *Function, inputBatches []arrow.RecordBatch, outputSchema *arrow.Schema, outputName string, stats *CallStatistics) ([]arrow.RecordBatch, error) {
	outputBatches := make([]arrow.RecordBatch, 0, len(inputBatches))
	for _, rec := range inputBatches {
		stats.RecordInput(rec.NumRows(), batchBufferSize(rec))

		batch, err := BatchFromRecord(rec)
		if err != nil {
			if udfErr, ok := err.(*UDFError); ok {
				udfErr.Method = fn.name
			}
			return outputBatches, err
		}
		col, err := Dispatch(h.mem, fn, batch, outputName)
		batch.Release()
		if err != nil {
			return outputBatches, err
		}

		out := array.NewRecordBatch(outputSchema, []arrow.Array{col.Data()}, int64(col.Len()))
		col.Release()
		stats.RecordOutput(out.NumRows(), batchBufferSize(out))
		outputBatches = append(outputBatches, out)
	}
	return outputBatches, nil
}
