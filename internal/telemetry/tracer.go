package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for platform operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Platform-wide keys use their component prefix (plugin., kernel., ...).
const (
	// ========================================================================
	// Client attributes (control API)
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"

	// ========================================================================
	// Plugin attributes
	// ========================================================================
	AttrPluginName = "plugin.name"
	AttrPluginKind = "plugin.kind" // service, utility
	AttrPluginPath = "plugin.path" // descriptor directory

	// ========================================================================
	// Kernel attributes
	// ========================================================================
	AttrKernelSingleton = "kernel.singleton"
	AttrKernelCached    = "kernel.cached"

	// ========================================================================
	// Lifecycle attributes
	// ========================================================================
	AttrLifecycleState = "lifecycle.state"
	AttrShutdownPhase  = "shutdown.phase" // kernel, tasks
	AttrTaskID         = "task.id"
	AttrTaskCount      = "task.count"

	// ========================================================================
	// Plan attributes
	// ========================================================================
	AttrPlanServices  = "plan.services"
	AttrPlanUtilities = "plan.utilities"
	AttrPlanCached    = "plan.cached"

	// ========================================================================
	// Tenant/bot attributes
	// ========================================================================
	AttrTenantID = "tenant.id"
	AttrBotID    = "bot.id"
	AttrChatID   = "chat.id"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
	AttrAuth     = "auth.method"

	// ========================================================================
	// State store attributes
	// ========================================================================
	AttrStateKey    = "state.key"
	AttrStateSource = "state.source"

	// ========================================================================
	// Media/storage backend attributes
	// ========================================================================
	AttrMediaID   = "media.id"
	AttrStoreName = "store.name"
	AttrStoreType = "store.type" // fs, s3
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
	AttrSize      = "storage.size"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// ========================================================================
	// Lifecycle spans
	// ========================================================================
	SpanStartup        = "lifecycle.startup"
	SpanShutdown       = "lifecycle.shutdown"
	SpanShutdownKernel = "lifecycle.shutdown.kernel"
	SpanShutdownTasks  = "lifecycle.shutdown.tasks"
	SpanReload         = "lifecycle.reload"

	// ========================================================================
	// Kernel spans
	// ========================================================================
	SpanKernelInitialize = "kernel.initialize"
	SpanKernelGet        = "kernel.get"
	SpanKernelShutdown   = "kernel.shutdown"

	// ========================================================================
	// Discovery/planner spans
	// ========================================================================
	SpanDiscoveryScan = "discovery.scan"
	SpanPlanCompute   = "plan.compute"

	// ========================================================================
	// State store spans
	// ========================================================================
	SpanStateGet    = "state.get"
	SpanStatePut    = "state.put"
	SpanStateDelete = "state.delete"

	// ========================================================================
	// Media store spans
	// ========================================================================
	SpanMediaRead  = "media.read"
	SpanMediaWrite = "media.write"
	SpanMediaStat  = "media.stat"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// PluginName returns an attribute for plugin name
func PluginName(name string) attribute.KeyValue {
	return attribute.String(AttrPluginName, name)
}

// PluginKind returns an attribute for plugin kind
func PluginKind(kind string) attribute.KeyValue {
	return attribute.String(AttrPluginKind, kind)
}

// PluginPath returns an attribute for a plugin descriptor directory
func PluginPath(path string) attribute.KeyValue {
	return attribute.String(AttrPluginPath, path)
}

// KernelSingleton returns an attribute for the singleton flag
func KernelSingleton(singleton bool) attribute.KeyValue {
	return attribute.Bool(AttrKernelSingleton, singleton)
}

// KernelCached returns an attribute for cache hit indicator
func KernelCached(cached bool) attribute.KeyValue {
	return attribute.Bool(AttrKernelCached, cached)
}

// LifecycleState returns an attribute for the controller state
func LifecycleState(state string) attribute.KeyValue {
	return attribute.String(AttrLifecycleState, state)
}

// ShutdownPhase returns an attribute for the shutdown phase
func ShutdownPhase(phase string) attribute.KeyValue {
	return attribute.String(AttrShutdownPhase, phase)
}

// TaskID returns an attribute for a service task ID
func TaskID(id string) attribute.KeyValue {
	return attribute.String(AttrTaskID, id)
}

// TaskCount returns an attribute for the number of running tasks
func TaskCount(n int) attribute.KeyValue {
	return attribute.Int(AttrTaskCount, n)
}

// PlanServices returns an attribute for number of enabled services
func PlanServices(n int) attribute.KeyValue {
	return attribute.Int(AttrPlanServices, n)
}

// PlanUtilities returns an attribute for number of required utilities
func PlanUtilities(n int) attribute.KeyValue {
	return attribute.Int(AttrPlanUtilities, n)
}

// PlanCached returns an attribute for plan cache hit indicator
func PlanCached(cached bool) attribute.KeyValue {
	return attribute.Bool(AttrPlanCached, cached)
}

// TenantID returns an attribute for tenant ID
func TenantID(id string) attribute.KeyValue {
	return attribute.String(AttrTenantID, id)
}

// BotID returns an attribute for bot ID
func BotID(id string) attribute.KeyValue {
	return attribute.String(AttrBotID, id)
}

// ChatID returns an attribute for chat ID
func ChatID(id string) attribute.KeyValue {
	return attribute.String(AttrChatID, id)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StateKey returns an attribute for a state store key
func StateKey(key string) attribute.KeyValue {
	return attribute.String(AttrStateKey, key)
}

// StateSource returns an attribute for a liveness source
func StateSource(source string) attribute.KeyValue {
	return attribute.String(AttrStateSource, source)
}

// MediaID returns an attribute for media object ID
func MediaID(id string) attribute.KeyValue {
	return attribute.String(AttrMediaID, id)
}

// StoreName returns an attribute for store name
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StoreType returns an attribute for store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StorageSize returns an attribute for object size
func StorageSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// StartPluginSpan starts a span for an operation on a single plugin.
// This is a convenience function that sets common attributes.
func StartPluginSpan(ctx context.Context, operation, plugin string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		PluginName(plugin),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, operation, trace.WithAttributes(allAttrs...))
}

// StartStateSpan starts a span for a state store operation.
func StartStateSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "state."+operation, trace.WithAttributes(attrs...))
}

// StartMediaSpan starts a span for a media store operation.
func StartMediaSpan(ctx context.Context, operation string, mediaID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		MediaID(mediaID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "media."+operation, trace.WithAttributes(allAttrs...))
}
