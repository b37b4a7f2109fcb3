package xlockmgr

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "xlockmgr"

	// instrumentationVersion Metrics 与 Trace 共用
	instrumentationVersion = "1.0.0"
)

const (
	spanNameAcquire = "xlockmgr.Acquire"
	spanNameRequest = "xlockmgr.Request"
	spanNameQuery   = "xlockmgr.Query"
)

// span 与指标共用的属性键
const (
	attrName     = "xlockmgr.name"
	attrMode     = "xlockmgr.mode"
	attrTicketID = "xlockmgr.ticket_id"
	attrOutcome  = "xlockmgr.outcome"
	attrReason   = "xlockmgr.reason"
	attrStolen   = "xlockmgr.stolen"
	attrHeld     = "xlockmgr.held"
	attrPending  = "xlockmgr.pending"
)

func getTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName, trace.WithInstrumentationVersion(instrumentationVersion))
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

func setSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ClassifyError(err))
	}
}

func setSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
