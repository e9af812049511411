package services

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTarget(ctx, "all")
	ctx = WithComponent(ctx, "caller")
	ctx = WithStage(ctx, "update_repos")

	if got, ok := TargetFromContext(ctx); !ok || got != "all" {
		t.Fatalf("target = %q, %v", got, ok)
	}
	if got, ok := ComponentFromContext(ctx); !ok || got != "caller" {
		t.Fatalf("component = %q, %v", got, ok)
	}
	if got, ok := StageFromContext(ctx); !ok || got != "update_repos" {
		t.Fatalf("stage = %q, %v", got, ok)
	}
}

func TestContextEmptyValuesIgnored(t *testing.T) {
	ctx := WithComponent(context.Background(), "")
	if _, ok := ComponentFromContext(ctx); ok {
		t.Fatal("empty component should not be stored")
	}
}
