package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "botmesh", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("PluginName", func(t *testing.T) {
		attr := PluginName("heartbeat")
		assert.Equal(t, AttrPluginName, string(attr.Key))
		assert.Equal(t, "heartbeat", attr.Value.AsString())
	})

	t.Run("PluginKind", func(t *testing.T) {
		attr := PluginKind("utility")
		assert.Equal(t, AttrPluginKind, string(attr.Key))
		assert.Equal(t, "utility", attr.Value.AsString())
	})

	t.Run("KernelSingleton", func(t *testing.T) {
		attr := KernelSingleton(true)
		assert.Equal(t, AttrKernelSingleton, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("LifecycleState", func(t *testing.T) {
		attr := LifecycleState("running")
		assert.Equal(t, AttrLifecycleState, string(attr.Key))
		assert.Equal(t, "running", attr.Value.AsString())
	})

	t.Run("ShutdownPhase", func(t *testing.T) {
		attr := ShutdownPhase("kernel")
		assert.Equal(t, AttrShutdownPhase, string(attr.Key))
		assert.Equal(t, "kernel", attr.Value.AsString())
	})

	t.Run("TaskCount", func(t *testing.T) {
		attr := TaskCount(3)
		assert.Equal(t, AttrTaskCount, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("PlanServices", func(t *testing.T) {
		attr := PlanServices(2)
		assert.Equal(t, AttrPlanServices, string(attr.Key))
		assert.Equal(t, int64(2), attr.Value.AsInt64())
	})

	t.Run("PlanCached", func(t *testing.T) {
		attr := PlanCached(true)
		assert.Equal(t, AttrPlanCached, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("TenantID", func(t *testing.T) {
		attr := TenantID("acme")
		assert.Equal(t, AttrTenantID, string(attr.Key))
		assert.Equal(t, "acme", attr.Value.AsString())
	})

	t.Run("ChatID", func(t *testing.T) {
		attr := ChatID("chat-42")
		assert.Equal(t, AttrChatID, string(attr.Key))
		assert.Equal(t, "chat-42", attr.Value.AsString())
	})

	t.Run("StateKey", func(t *testing.T) {
		attr := StateKey("session/acme/chat-42")
		assert.Equal(t, AttrStateKey, string(attr.Key))
		assert.Equal(t, "session/acme/chat-42", attr.Value.AsString())
	})

	t.Run("MediaID", func(t *testing.T) {
		attr := MediaID("abc123")
		assert.Equal(t, AttrMediaID, string(attr.Key))
		assert.Equal(t, "abc123", attr.Value.AsString())
	})

	t.Run("StoreType", func(t *testing.T) {
		attr := StoreType("s3")
		assert.Equal(t, AttrStoreType, string(attr.Key))
		assert.Equal(t, "s3", attr.Value.AsString())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})

	t.Run("StorageSize", func(t *testing.T) {
		attr := StorageSize(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})
}

func TestStartPluginSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartPluginSpan(ctx, SpanKernelGet, "statestore")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartPluginSpan(ctx, SpanKernelGet, "heartbeat", PluginKind("service"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartStateSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStateSpan(ctx, "get")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartStateSpan(ctx, "put", TenantID("acme"), ChatID("chat-42"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartMediaSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartMediaSpan(ctx, "read", "media-123")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartMediaSpan(ctx, "write", "media-456", StorageSize(1024))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
