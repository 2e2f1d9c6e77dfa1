package contextassembler

import (
	"context"
	"testing"
	"time"

	"github.com/orchestratord/orchestratord/internal/projects"
)

func TestAssembleRanksNeedsAttentionFirst(t *testing.T) {
	reg := projects.NewRegistry("", []string{"quiet", "urgent"})
	reg.Get("urgent").NeedsAttention = true

	a := NewAssembler(reg, projects.PriorityOverrides{}, nil, nil, nil)
	snap := a.Assemble(context.Background(), nil, nil, nil, nil, "observe", 0)

	if len(snap.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(snap.Projects))
	}
	if snap.Projects[0].Name != "urgent" {
		t.Errorf("expected needs-attention project first, got %s", snap.Projects[0].Name)
	}
}

func TestAssemblePinnedOverridesRank(t *testing.T) {
	reg := projects.NewRegistry("", []string{"a", "b"})
	po := projects.PriorityOverrides{Pinned: []string{"b"}}

	a := NewAssembler(reg, po, nil, nil, nil)
	snap := a.Assemble(context.Background(), nil, nil, nil, nil, "observe", 0)

	if snap.Projects[0].Name != "b" {
		t.Errorf("expected pinned project first, got %s", snap.Projects[0].Name)
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Set(ctx, "k", []byte("v"), -time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected immediate expiry with negative TTL")
	}
}
