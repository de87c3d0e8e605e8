package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Component string    // Subsystem handling the request
	Plugin    string    // Plugin the request concerns
	Tenant    string    // Tenant identifier
	RequestID string    // Request correlation identifier
	ClientIP  string    // Client IP address (without port)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Component: lc.Component,
		Plugin:    lc.Plugin,
		Tenant:    lc.Tenant,
		RequestID: lc.RequestID,
		ClientIP:  lc.ClientIP,
		StartTime: lc.StartTime,
	}
}

// WithComponent returns a copy with the component set
func (lc *LogContext) WithComponent(component string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Component = component
	}
	return clone
}

// WithPlugin returns a copy with the plugin set
func (lc *LogContext) WithPlugin(plugin string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Plugin = plugin
	}
	return clone
}

// WithTenant returns a copy with the tenant set
func (lc *LogContext) WithTenant(tenant string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Tenant = tenant
	}
	return clone
}

// WithRequestID returns a copy with the request ID set
func (lc *LogContext) WithRequestID(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.RequestID = id
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
