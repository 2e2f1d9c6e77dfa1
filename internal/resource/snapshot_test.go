package resource

import (
	"context"
	"testing"
)

func TestCollectReturnsPlausibleSnapshot(t *testing.T) {
	snap, err := Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.TotalMemoryMB <= 0 {
		t.Errorf("TotalMemoryMB = %d, want > 0", snap.TotalMemoryMB)
	}
	if snap.FreeMemoryMB < 0 || snap.FreeMemoryMB > snap.TotalMemoryMB {
		t.Errorf("FreeMemoryMB %d out of range for TotalMemoryMB %d", snap.FreeMemoryMB, snap.TotalMemoryMB)
	}
	if snap.UsedPercent < 0 || snap.UsedPercent > 100 {
		t.Errorf("UsedPercent = %f, want within [0,100]", snap.UsedPercent)
	}
}

func TestFreeMemoryAtLeastAgreesWithCollect(t *testing.T) {
	snap, err := Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	ok, gotSnap, err := FreeMemoryAtLeast(context.Background(), int(snap.FreeMemoryMB)+1)
	if err != nil {
		t.Fatalf("FreeMemoryAtLeast: %v", err)
	}
	if ok {
		t.Error("requesting one more MB than available should report false")
	}
	if gotSnap.TotalMemoryMB <= 0 {
		t.Error("FreeMemoryAtLeast should return a populated snapshot alongside the bool")
	}

	ok, _, err = FreeMemoryAtLeast(context.Background(), 0)
	if err != nil {
		t.Fatalf("FreeMemoryAtLeast: %v", err)
	}
	if !ok {
		t.Error("a 0MB floor should always be satisfied")
	}
}
