package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})

	_, ok := StartSpan(context.Background(), "test", "ok", attribute.String("k", "v"))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "test", "failed")
	EndSpan(failed, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "ok", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("k", "v"))
	assert.Contains(t, spans[0].Attributes(), OutcomeKey.String("success"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Contains(t, spans[1].Attributes(), OutcomeKey.String("error"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}
