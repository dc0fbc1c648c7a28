package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	ctx := WithCorrelationID(context.Background(), "corr-1")
	require.Equal(t, "corr-1", CorrelationID(ctx))
	LoggerFromContext(ctx).Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "corr-1", line["correlation_id"])
	require.Equal(t, "v", line["k"])
}

func TestLoggerFromContext_WithoutID(t *testing.T) {
	require.Empty(t, CorrelationID(context.Background()))
	require.Same(t, Logger(), LoggerFromContext(context.Background()))
}

func TestSetOutput_ConcurrentWithLogging(t *testing.T) {
	SetOutput(io.Discard)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	ctx := WithCorrelationID(context.Background(), "corr-2")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				LoggerFromContext(ctx).Info("tick")
			}
		}()
	}
	for i := 0; i < 100; i++ {
		SetOutput(io.Discard)
	}
	wg.Wait()
	require.NotNil(t, Logger())
}
