package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so plugin, kernel
// and API logs can be aggregated and queried with the same vocabulary.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Kernel & Plugins
	// ========================================================================
	KeyComponent  = "component"  // Subsystem emitting the log: kernel, planner, discovery, runtime
	KeyPlugin     = "plugin"     // Plugin name the log line concerns
	KeyKind       = "kind"       // Plugin kind: utility, service
	KeyDependency = "dependency" // Dependency name during resolution
	KeySingleton  = "singleton"  // Singleton flag of the plugin
	KeyTaskID     = "task_id"    // Background task handle identifier
	KeySignal     = "signal"     // OS signal name received
	KeyState      = "state"      // Lifecycle state name
	KeyPhase      = "phase"      // Shutdown phase: kernel, tasks

	// ========================================================================
	// Startup Plan
	// ========================================================================
	KeyServices  = "services"  // Number of services in a plan
	KeyUtilities = "utilities" // Number of utilities in a plan

	// ========================================================================
	// Control API
	// ========================================================================
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // Request path or file path
	KeyStatus    = "status"     // HTTP status code
	KeyClientIP  = "client_ip"  // Client IP address
	KeyRequestID = "request_id" // Request correlation identifier

	// ========================================================================
	// Tenancy & Messaging
	// ========================================================================
	KeyTenant    = "tenant"     // Tenant identifier
	KeyBotID     = "bot_id"     // Bot identifier within a tenant
	KeyChatID    = "chat_id"    // Chat/conversation identifier
	KeyUserID    = "user_id"    // Messaging platform user identifier
	KeySessionID = "session_id" // Dialogue session identifier

	// ========================================================================
	// Storage Backends
	// ========================================================================
	KeyStoreType = "store_type" // Store backend: badger, sqlite, postgres, fs, s3
	KeyBucket    = "bucket"     // Object storage bucket name
	KeyKey       = "key"        // Object or record key
	KeyRegion    = "region"     // Cloud region
	KeySize      = "size"       // Payload size in bytes

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyTimeout    = "timeout"     // Configured deadline for a bounded operation
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Kernel & Plugins
// ----------------------------------------------------------------------------

// Component returns a slog.Attr for the emitting subsystem
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Plugin returns a slog.Attr for a plugin name
func Plugin(name string) slog.Attr {
	return slog.String(KeyPlugin, name)
}

// PluginKind returns a slog.Attr for a plugin kind
func PluginKind(kind string) slog.Attr {
	return slog.String(KeyKind, kind)
}

// Dependency returns a slog.Attr for a dependency name under resolution
func Dependency(name string) slog.Attr {
	return slog.String(KeyDependency, name)
}

// TaskID returns a slog.Attr for a background task identifier
func TaskID(id string) slog.Attr {
	return slog.String(KeyTaskID, id)
}

// Signal returns a slog.Attr for an OS signal name
func Signal(name string) slog.Attr {
	return slog.String(KeySignal, name)
}

// State returns a slog.Attr for a lifecycle state name
func State(name string) slog.Attr {
	return slog.String(KeyState, name)
}

// Phase returns a slog.Attr for a shutdown phase name
func Phase(name string) slog.Attr {
	return slog.String(KeyPhase, name)
}

// ----------------------------------------------------------------------------
// Control API
// ----------------------------------------------------------------------------

// Method returns a slog.Attr for an HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Path returns a slog.Attr for a request or file path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// ClientIP returns a slog.Attr for a client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// RequestIDStr returns a slog.Attr for a request correlation ID
func RequestIDStr(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ----------------------------------------------------------------------------
// Tenancy & Messaging
// ----------------------------------------------------------------------------

// Tenant returns a slog.Attr for a tenant identifier
func Tenant(id string) slog.Attr {
	return slog.String(KeyTenant, id)
}

// BotID returns a slog.Attr for a bot identifier
func BotID(id string) slog.Attr {
	return slog.String(KeyBotID, id)
}

// SessionID returns a slog.Attr for a dialogue session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ----------------------------------------------------------------------------
// Storage Backends
// ----------------------------------------------------------------------------

// StoreType returns a slog.Attr for a storage backend type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Bucket returns a slog.Attr for an object storage bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object or record key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for a cloud region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Size returns a slog.Attr for a payload size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
