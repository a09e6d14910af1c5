package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTracerProvider_ExportsToWriter(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := NewTracerProvider("weft-test", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "unit")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), `"Name":"unit"`)
}

func TestNewTracerProvider_WithoutExporter(t *testing.T) {
	tp, shutdown, err := NewTracerProvider("weft-test", nil)
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer("test"))
	require.NoError(t, shutdown(context.Background()))
}
