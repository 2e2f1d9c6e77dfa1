package session

import (
	"context"
	"strings"
)

// OrphanedSession describes a live multiplexer window with no matching
// sidecar file, or a sidecar file with no matching live window —
// either way, state the daemon cannot trust after a restart.
type OrphanedSession struct {
	Project        string
	WindowName     string
	HasLiveWindow  bool
	HasSidecarFile bool
}

// Reconcile is SPEC_FULL.md's supplemented boot-time step: on daemon
// startup, compare live `orch-` windows against each known project's
// sidecar file and report mismatches so the caller can decide to adopt,
// kill, or evaluate them, rather than silently losing track of a
// session that outlived a daemon restart (spec.md is silent on daemon
// restart behavior; this closes that gap in the teacher's style of
// explicit startup reconciliation, see DESIGN.md).
func (c *Controller) Reconcile(ctx context.Context, projectWorkDirs map[string]string) ([]OrphanedSession, error) {
	liveWindows, err := c.mux.ListSessions(ctx, "orch-")
	if err != nil {
		return nil, err
	}
	liveSet := make(map[string]bool, len(liveWindows))
	for _, w := range liveWindows {
		liveSet[w] = true
	}

	seen := make(map[string]bool, len(projectWorkDirs))
	var orphans []OrphanedSession

	for project, dir := range projectWorkDirs {
		name := WindowName(project)
		seen[name] = true

		_, hasSidecar, err := ReadSidecar(dir)
		if err != nil {
			hasSidecar = false
		}
		hasLive := liveSet[name]

		if hasLive != hasSidecar {
			orphans = append(orphans, OrphanedSession{
				Project:        project,
				WindowName:     name,
				HasLiveWindow:  hasLive,
				HasSidecarFile: hasSidecar,
			})
		}
	}

	// Live windows belonging to no known project at all.
	for _, w := range liveWindows {
		if seen[w] {
			continue
		}
		if !strings.HasPrefix(w, "orch-") {
			continue
		}
		orphans = append(orphans, OrphanedSession{WindowName: w, HasLiveWindow: true})
	}

	return orphans, nil
}
