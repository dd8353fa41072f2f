// SPDX-License-Identifier: Apache-2.0

// Package athenaotel provides OpenTelemetry instrumentation for Athena UDF
// handlers. It implements the [athenaudf.DispatchHook] interface to add
// distributed tracing and metrics to UDF dispatch.
//
// Usage:
//
//	handler := athenaudf.NewHandler(registry)
//	athenaotel.InstrumentHandler(handler, athenaotel.DefaultConfig())
package athenaotel

import (
	"context"
	"fmt"
	"time"

	"github.com/matthias-Q/athena-udf/athenaudf"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "athena_udf"

// Config configures OpenTelemetry instrumentation for a UDF handler.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed dispatches.
	// Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value. Defaults to "AthenaUDF".
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with sensible defaults. TracerProvider and
// MeterProvider are resolved from the global OTel SDK at instrumentation time.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentHandler attaches OpenTelemetry instrumentation to a UDF handler.
// The hook is installed via [athenaudf.Handler.SetDispatchHook].
func InstrumentHandler(handler *athenaudf.Handler, cfg Config) {
	handler.SetDispatchHook(NewHook(cfg))
}

// NewHook builds the dispatch hook without installing it, for callers that
// compose hooks themselves.
func NewHook(cfg Config) athenaudf.DispatchHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "AthenaUDF"
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.requestCounter, _ = meter.Int64Counter("udf.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of UDF requests"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("udf.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of UDF requests"),
		)
		hook.rowCounter, _ = meter.Int64Counter("udf.server.rows",
			metric.WithUnit("{row}"),
			metric.WithDescription("Number of input rows processed"),
		)
	}

	return hook
}

// otelHook implements athenaudf.DispatchHook with OpenTelemetry tracing and metrics.
type otelHook struct {
	cfg               Config
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
	rowCounter        metric.Int64Counter
}

// spanToken is the HookToken returned by OnDispatchStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnDispatchStart starts a server span for the UDF invocation.
func (h *otelHook) OnDispatchStart(ctx context.Context, info athenaudf.DispatchInfo) (context.Context, athenaudf.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := fmt.Sprintf("athena_udf/%s", info.Method)

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "athena_udf"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Method),
		attribute.String("rpc.athena.function_type", info.FunctionType),
		attribute.Bool("rpc.athena.http_wrapped", info.HTTPWrapped),
	}
	if info.Account != "" {
		attrs = append(attrs, attribute.String("rpc.athena.account", info.Account))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnDispatchEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnDispatchEnd(ctx context.Context, token athenaudf.HookToken, info athenaudf.DispatchInfo, stats *athenaudf.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "athena_udf"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Method),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
		if h.rowCounter != nil && stats != nil {
			h.rowCounter.Add(ctx, stats.InputRows, metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("rpc.athena.input_batches", stats.InputBatches),
				attribute.Int64("rpc.athena.output_batches", stats.OutputBatches),
				attribute.Int64("rpc.athena.input_rows", stats.InputRows),
				attribute.Int64("rpc.athena.output_rows", stats.OutputRows),
				attribute.Int64("rpc.athena.input_bytes", stats.InputBytes),
				attribute.Int64("rpc.athena.output_bytes", stats.OutputBytes),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			errType := fmt.Sprintf("%T", err)
			if udfErr, ok := err.(*athenaudf.UDFError); ok {
				errType = udfErr.Kind
			}
			st.span.SetAttributes(attribute.String("rpc.athena.error_type", errType))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
