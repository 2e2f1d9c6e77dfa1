// Package resource captures the workstation resource snapshot consumed by
// C3 (context assembly) and the C4 just-in-time precondition check before
// a start action (spec §4.2: "free memory >= minFreeMemoryMB").
package resource

import (
	"context"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Snapshot is a compact view of the workstation's resource state.
type Snapshot struct {
	FreeMemoryMB  int64 `json:"freeMemoryMb"`
	TotalMemoryMB int64 `json:"totalMemoryMb"`
	UsedPercent   float64 `json:"usedPercent"`
	ProcessCount  int   `json:"processCount"`
}

// Collect gathers a fresh Snapshot. Errors from gopsutil are tolerated:
// the caller treats a failed collection as "unknown", never as a crash.
func Collect(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, err
	}
	snap.FreeMemoryMB = int64(vm.Available / (1024 * 1024))
	snap.TotalMemoryMB = int64(vm.Total / (1024 * 1024))
	snap.UsedPercent = vm.UsedPercent

	pids, err := process.PidsWithContext(ctx)
	if err == nil {
		snap.ProcessCount = len(pids)
	}

	return snap, nil
}

// FreeMemoryAtLeast reports whether the current free memory meets minMB.
// Used by the decision executor's just-in-time precondition check.
func FreeMemoryAtLeast(ctx context.Context, minMB int) (bool, Snapshot, error) {
	snap, err := Collect(ctx)
	if err != nil {
		return false, snap, err
	}
	return snap.FreeMemoryMB >= int64(minMB), snap, nil
}
