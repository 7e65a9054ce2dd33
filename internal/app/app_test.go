package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/engine"
)

func TestOpenWiresEngineAndOrchestrator(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a, err := Open(ctx, Options{Workspace: t.TempDir(), Logger: zap.NewNop(), Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	c, err := a.Engine.CreateCase(ctx, engine.CaseCreateOptions{
		Description: "Container held by customs at JNPT",
		Disruption:  domain.DisruptionDetails{Type: "customs_hold", Scope: "container", Identifier: "MSKU1234567", Source: "driver"},
		ActorID:     "driver",
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if !c.CreatedAt.Equal(fixed) {
		t.Fatalf("expected engine clock, got %s", c.CreatedAt)
	}
	out, err := a.Orchestrator.PerformEnhancedRCA(ctx, c.ID, "ops@example.com")
	if err != nil {
		t.Fatalf("rca: %v", err)
	}
	if !out.Fallback {
		t.Fatalf("expected fallback synthesis without a reasoning endpoint")
	}
}
