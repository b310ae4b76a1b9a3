package agentctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithAgentNameRoundTrip(t *testing.T) {
	ctx := WithAgentName(context.Background(), "terravision")
	assert.Equal(t, "terravision", AgentNameFromContext(ctx))
}

func TestAgentNameFromContext_Empty(t *testing.T) {
	assert.Empty(t, AgentNameFromContext(context.Background()))
}

func TestWithRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithRequestID(ctx, "req-2")
	assert.Equal(t, "req-2", RequestIDFromContext(ctx))
	assert.Empty(t, AgentNameFromContext(ctx))
}

func TestLogAttrs(t *testing.T) {
	assert.Empty(t, LogAttrs(context.Background()))

	ctx := WithAgentName(WithRequestID(context.Background(), "req-1"), "terravision")
	assert.Equal(t, []any{"request_id", "req-1", "agent", "terravision"}, LogAttrs(ctx))
}
