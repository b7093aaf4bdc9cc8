package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

func newRecordingEngine(t *testing.T) (*Engine, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return newTestEngine(t, WithTracerProvider(tp)), sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestTracing_LoadSpan(t *testing.T) {
	e, sr := newRecordingEngine(t)
	mustCreate(t, e, "page", "pages")

	require.NoError(t, e.Call(context.Background(), "pages", "a.md", "A").Err())

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, SpanLoad, span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	attrs := attrMap(span.Attributes())
	assert.Equal(t, "pages", attrs[AttrColl].AsString())
	assert.Equal(t, "sync", attrs[AttrConv].AsString())
	assert.Equal(t, "load-1", attrs[AttrLoadID].AsString())
	assert.Equal(t, int64(1), attrs[AttrRecords].AsInt64())

	require.Len(t, span.Events(), 1)
	assert.Equal(t, EventMerge, span.Events()[0].Name)
}

func TestTracing_FailedLoad(t *testing.T) {
	e, sr := newRecordingEngine(t)
	mustCreate(t, e, "page", "pages", WithChain(loader.SyncFunc(
		func(context.Context, any, record.Locals) (any, error) { return nil, errors.New("nope") })))

	require.Error(t, e.Call(context.Background(), "pages").Err())

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Empty(t, spans[0].Events())
}

func TestTracing_StageSeesSpanContext(t *testing.T) {
	e, _ := newRecordingEngine(t)
	var valid bool
	mustCreate(t, e, "page", "pages", WithChain(loader.SyncFunc(
		func(ctx context.Context, _ any, _ record.Locals) (any, error) {
			valid = trace.SpanContextFromContext(ctx).IsValid()
			return nil, nil
		})))

	require.NoError(t, e.Call(context.Background(), "pages").Err())
	assert.True(t, valid)
}
