package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/loadkit/internal/cache"
)

// Tracer and span naming.
const (
	TracerName   = "github.com/roach88/loadkit/internal/engine"
	SpanLoad     = "loadkit.load"
	EventMerge   = "loadkit.merge"
	AttrLoadID   = "loadkit.load_id"
	AttrColl     = "loadkit.collection"
	AttrLoader   = "loadkit.loader"
	AttrConv     = "loadkit.convention"
	AttrAdhoc    = "loadkit.adhoc_stages"
	AttrSteps    = "loadkit.steps"
	AttrRecords  = "loadkit.records"
	AttrMergeSeq = "loadkit.merge_seq"
)

func (e *Engine) startSpan(ctx context.Context, r *run, adhoc int) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, SpanLoad,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrLoadID, r.id),
			attribute.String(AttrColl, r.collection),
			attribute.String(AttrLoader, r.plan.Name),
			attribute.String(AttrConv, r.conv.String()),
			attribute.Int(AttrAdhoc, adhoc),
			attribute.Int(AttrSteps, len(r.plan.Steps)),
		),
	)
}

func spanMerge(span trace.Span, res cache.MergeResult) {
	span.AddEvent(EventMerge, trace.WithAttributes(
		attribute.Int(AttrRecords, res.Total()),
		attribute.Int64(AttrMergeSeq, res.Seq),
	))
}

func endSpan(span trace.Span, records int, err error) {
	span.SetAttributes(attribute.Int(AttrRecords, records))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
