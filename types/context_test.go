package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ctx = WithRequestID(ctx, "r1")
	if got, ok := RequestID(ctx); !ok || got != "r1" {
		t.Fatalf("RequestID mismatch: %v %v", got, ok)
	}

	ctx = WithUserID(ctx, "user")
	if got, ok := UserID(ctx); !ok || got != "user" {
		t.Fatalf("UserID mismatch: %v %v", got, ok)
	}

	ctx = WithSessionID(ctx, "general_1a2b3c4d")
	if got, ok := SessionID(ctx); !ok || got != "general_1a2b3c4d" {
		t.Fatalf("SessionID mismatch: %v %v", got, ok)
	}

	ctx = WithAgentType(ctx, "general")
	if got, ok := AgentType(ctx); !ok || got != "general" {
		t.Fatalf("AgentType mismatch: %v %v", got, ok)
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	t.Parallel()

	ctx := WithUserID(context.Background(), "")
	if _, ok := UserID(ctx); ok {
		t.Fatalf("empty user id should not be reported")
	}
	if _, ok := RequestID(context.Background()); ok {
		t.Fatalf("missing request id should not be reported")
	}
}
