package athenaudf

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return NewRegistry(
		MustFunction("string_reverse", reverseString),
		MustFunction("add_numbers", func(a, b int64) int64 { return a + b }),
	)
}

// buildUDFRequest assembles a request envelope the way Athena does: input
// batches and output schema as split, base64-coded IPC streams.
func buildUDFRequest(t *testing.T, method string, inSchema *arrow.Schema, batches []arrow.RecordBatch, outSchema *arrow.Schema) json.RawMessage {
	t.Helper()

	in, err := EncodeRecords("a-1", inSchema, batches, memory.DefaultAllocator)
	require.NoError(t, err)
	outSchemaBytes, err := serializeSchema(outSchema, memory.DefaultAllocator)
	require.NoError(t, err)

	req := UDFRequest{
		Type:         TypeUDFRequest,
		Identity:     Identity{Account: "123456789012", Arn: "arn:aws:iam::123456789012:role/athena"},
		InputRecords: InputRecords{AID: in.AID, Schema: in.Schema, Records: in.Records},
		OutputSchema: EncodedSchema{Schema: outSchemaBytes},
		MethodName:   method,
		FunctionType: "SCALAR",
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return payload
}

// decodeResponseValues reads the single string output column of a response.
func decodeResponseValues(t *testing.T, resp UDFResponse) [][]any {
	t.Helper()
	in := InputRecords{Schema: resp.Records.Schema, Records: resp.Records.Records}
	batches, err := in.Decode(memory.DefaultAllocator)
	require.NoError(t, err)
	out := make([][]any, len(batches))
	for i, rec := range batches {
		b, err := BatchFromRecord(rec)
		require.NoError(t, err)
		out[i] = cellValues(b.Column(0))
		b.Release()
		rec.Release()
	}
	return out
}

func TestHandlePing(t *testing.T) {
	h := NewHandler(testRegistry())
	payload := json.RawMessage(`{"@type":"PingRequest","identity":{"account":"123"},"catalogName":"cat","queryId":"q-1"}`)

	raw, err := h.Handle(context.Background(), payload)
	require.NoError(t, err)

	var resp PingResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Equal(t, TypePingResponse, resp.Type)
	require.Equal(t, "cat", resp.CatalogName)
	require.Equal(t, "q-1", resp.QueryID)
	require.Equal(t, 23, resp.Capabilities)
	require.Equal(t, 5, resp.SerdeVersion)
}

func TestHandleUDF(t *testing.T) {
	h := NewHandler(testRegistry())
	inSchema := inputSchema()
	rec := stringRecord(t, inSchema, ptr("hello-athena"), nil, ptr("ab"))
	outSchema := arrow.NewSchema([]arrow.Field{
		{Name: "reversed", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	payload := buildUDFRequest(t, "string_reverse", inSchema, []arrow.RecordBatch{rec}, outSchema)
	raw, err := h.Handle(context.Background(), payload)
	require.NoError(t, err)

	var resp UDFResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Equal(t, TypeUDFResponse, resp.Type)
	require.Equal(t, "string_reverse", resp.MethodName)
	require.Equal(t, "a-1", resp.Records.AID)

	// The output column carries the name from the request's output schema.
	decoded, err := (InputRecords{Schema: resp.Records.Schema, Records: resp.Records.Records}).Decode(memory.DefaultAllocator)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, "reversed", decoded[0].Schema().Field(0).Name)
	decoded[0].Release()

	values := decodeResponseValues(t, resp)
	require.Equal(t, [][]any{{"anehta-olleh", nil, "ba"}}, values)
}

func TestHandleUDFMultipleBatches(t *testing.T) {
	h := NewHandler(testRegistry())
	inSchema := inputSchema()
	rec1 := stringRecord(t, inSchema, ptr("ab"))
	rec2 := stringRecord(t, inSchema, ptr("cd"), ptr("ef"))
	outSchema := arrow.NewSchema([]arrow.Field{
		{Name: "result", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	payload := buildUDFRequest(t, "string_reverse", inSchema, []arrow.RecordBatch{rec1, rec2}, outSchema)
	raw, err := h.Handle(context.Background(), payload)
	require.NoError(t, err)

	var resp UDFResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	values := decodeResponseValues(t, resp)
	require.Equal(t, [][]any{{"ba"}, {"dc", "fe"}}, values)
}

func TestHandleHTTPWrapped(t *testing.T) {
	h := NewHandler(testRegistry())
	inner := `{"@type":"PingRequest","identity":{},"catalogName":"cat","queryId":"q"}`
	wrapped, err := json.Marshal(map[string]any{"body": inner})
	require.NoError(t, err)

	raw, err := h.Handle(context.Background(), wrapped)
	require.NoError(t, err)

	var httpResp struct {
		StatusCode      int               `json:"statusCode"`
		Headers         map[string]string `json:"headers"`
		Body            string            `json:"body"`
		Cookies         []string          `json:"cookies"`
		IsBase64Encoded bool              `json:"isBase64Encoded"`
	}
	require.NoError(t, json.Unmarshal(raw, &httpResp))
	require.Equal(t, 200, httpResp.StatusCode)
	require.Equal(t, "application/json", httpResp.Headers["content-type"])
	require.False(t, httpResp.IsBase64Encoded)
	require.NotNil(t, httpResp.Cookies)

	var resp PingResponse
	require.NoError(t, json.Unmarshal([]byte(httpResp.Body), &resp))
	require.Equal(t, TypePingResponse, resp.Type)
	require.Equal(t, "cat", resp.CatalogName)
}

func TestHandleUnknownMethod(t *testing.T) {
	h := NewHandler(testRegistry())
	inSchema := inputSchema()
	rec := stringRecord(t, inSchema, ptr("x"))
	outSchema := arrow.NewSchema([]arrow.Field{
		{Name: "result", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	payload := buildUDFRequest(t, "no_such_method", inSchema, []arrow.RecordBatch{rec}, outSchema)
	_, err := h.Handle(context.Background(), payload)
	var udfErr *UDFError
	require.ErrorAs(t, err, &udfErr)
	require.Equal(t, KindUnknownFunction, udfErr.Kind)
}

func TestHandleOutputSchemaTypeMismatch(t *testing.T) {
	h := NewHandler(testRegistry())
	inSchema := inputSchema()
	rec := stringRecord(t, inSchema, ptr("x"))
	outSchema := arrow.NewSchema([]arrow.Field{
		{Name: "result", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)

	payload := buildUDFRequest(t, "string_reverse", inSchema, []arrow.RecordBatch{rec}, outSchema)
	_, err := h.Handle(context.Background(), payload)
	var udfErr *UDFError
	require.ErrorAs(t, err, &udfErr)
	require.Equal(t, KindTypeMismatch, udfErr.Kind)
}

func TestHandleUnknownRequestType(t *testing.T) {
	h := NewHandler(testRegistry())
	_, err := h.Handle(context.Background(), json.RawMessage(`{"@type":"SomethingElse"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "SomethingElse")
}

// recordingHook captures the hook calls made during dispatch.
type recordingHook struct {
	mu     sync.Mutex
	starts []DispatchInfo
	ends   []DispatchInfo
	stats  []*CallStatistics
	errs   []error
}

func (h *recordingHook) OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts = append(h.starts, info)
	return ctx, len(h.starts)
}

func (h *recordingHook) OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends = append(h.ends, info)
	h.stats = append(h.stats, stats)
	h.errs = append(h.errs, err)
}

func TestHandlerDispatchHook(t *testing.T) {
	hook := &recordingHook{}
	h := NewHandler(testRegistry())
	h.SetDispatchHook(hook)

	inSchema := inputSchema()
	rec1 := stringRecord(t, inSchema, ptr("ab"), ptr("cd"))
	rec2 := stringRecord(t, inSchema, ptr("ef"))
	outSchema := arrow.NewSchema([]arrow.Field{
		{Name: "result", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	payload := buildUDFRequest(t, "string_reverse", inSchema, []arrow.RecordBatch{rec1, rec2}, outSchema)
	_, err := h.Handle(context.Background(), payload)
	require.NoError(t, err)

	require.Len(t, hook.starts, 1)
	require.Len(t, hook.ends, 1)
	require.Equal(t, "string_reverse", hook.starts[0].Method)
	require.Equal(t, "SCALAR", hook.starts[0].FunctionType)
	require.Equal(t, "123456789012", hook.starts[0].Account)
	require.NoError(t, hook.errs[0])

	stats := hook.stats[0]
	require.EqualValues(t, 2, stats.InputBatches)
	require.EqualValues(t, 2, stats.OutputBatches)
	require.EqualValues(t, 3, stats.InputRows)
	require.EqualValues(t, 3, stats.OutputRows)
	require.Positive(t, stats.InputBytes)
	require.Positive(t, stats.OutputBytes)
}

func TestHandlerHookSeesDispatchError(t *testing.T) {
	hook := &recordingHook{}
	h := NewHandler(testRegistry())
	h.SetDispatchHook(hook)

	inSchema := arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	arr := int64Array(ptr(int64(1)))
	rec := array.NewRecordBatch(inSchema, []arrow.Array{arr}, 1)
	arr.Release()
	defer rec.Release()

	outSchema := arrow.NewSchema([]arrow.Field{
		{Name: "result", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	// string_reverse over an int64 column: type mismatch during dispatch.
	payload := buildUDFRequest(t, "string_reverse", inSchema, []arrow.RecordBatch{rec}, outSchema)
	_, err := h.Handle(context.Background(), payload)
	require.Error(t, err)

	require.Len(t, hook.errs, 1)
	require.Error(t, hook.errs[0])
	var udfErr *UDFError
	require.ErrorAs(t, hook.errs[0], &udfErr)
	require.Equal(t, KindTypeMismatch, udfErr.Kind)
}
