// Package agentctx carries run identity across package boundaries: the
// request ID assigned at the HTTP edge and the name of the agent handling it.
// Tool dispatch and the upstream HTTP client read it back to tag their logs.
// It has no dependencies so any layer can import it without cycles.
package agentctx

import "context"

type (
	agentNameCtxKey struct{}
	requestIDCtxKey struct{}
)

// WithAgentName returns a new context carrying the given agent name.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameCtxKey{}, name)
}

// AgentNameFromContext extracts the agent name from the context.
// Returns "" if no agent name is present.
func AgentNameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(agentNameCtxKey{}).(string)
	return v
}

// WithRequestID returns a new context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns "" if none is present.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDCtxKey{}).(string)
	return v
}

// LogAttrs returns slog key/value pairs for whichever identifiers ctx carries.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if name := AgentNameFromContext(ctx); name != "" {
		attrs = append(attrs, "agent", name)
	}
	return attrs
}
