// Package contextassembler implements C3: it compresses project
// snapshots, session status, resource/health/revenue/trust readings,
// conversation memory, and evaluation learnings into the compact blob
// the oracle gateway consumes each think cycle (spec §2 C3, §9 "Context
// assembler prompt-shaping").
package contextassembler

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/orchestratord/orchestratord/internal/health"
	"github.com/orchestratord/orchestratord/internal/projects"
	"github.com/orchestratord/orchestratord/internal/resource"
	"github.com/orchestratord/orchestratord/internal/statefile"
)

// ProjectSnapshot is the compact, prompt-ready view of one project.
type ProjectSnapshot struct {
	Name           string   `json:"name"`
	Phase          string   `json:"phase,omitempty"`
	Progress       string   `json:"progress,omitempty"`
	NeedsAttention bool     `json:"needsAttention"`
	Reason         string   `json:"reason,omitempty"`
	Blockers       []string `json:"blockers,omitempty"`
	LiveSession    bool     `json:"liveSession"`
	Rank           int      `json:"-"`
}

// Snapshot is the full context blob handed to the oracle gateway,
// rendered to JSON for prompt embedding.
type Snapshot struct {
	GeneratedAt      time.Time         `json:"generatedAt"`
	Projects         []ProjectSnapshot `json:"projects"`
	Resource         resource.Snapshot `json:"resource"`
	HealthDown       []string          `json:"healthDown,omitempty"`
	Revenue          map[string]float64 `json:"revenue,omitempty"`
	TrustLevel       string            `json:"trustLevel"`
	PendingReminders int               `json:"pendingReminders"`
	RecentDecisions  []statefile.Decision `json:"recentDecisions,omitempty"`
	Conversation     []ConversationTurn   `json:"conversation,omitempty"`
	Learnings        []string          `json:"learnings,omitempty"`
}

// ConversationTurn mirrors the command router's memory entries (spec §3
// "Conversation entry"), already redacted by the time it reaches here.
type ConversationTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Cache is an optional read-through layer for the (comparatively
// expensive) project-snapshot slice. In-memory by default; Redis
// wiring happens in NewRedisCache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Assembler builds a Snapshot from its constituent sources.
type Assembler struct {
	registry    *projects.Registry
	priorities  projects.PriorityOverrides
	liveSession func(project string) bool
	health      *health.Monitor
	lastHealth  health.CheckAllResult
	cache       Cache
}

// NewAssembler builds an Assembler. cache may be nil (no caching).
func NewAssembler(registry *projects.Registry, priorities projects.PriorityOverrides, liveSession func(string) bool, healthMonitor *health.Monitor, cache Cache) *Assembler {
	return &Assembler{registry: registry, priorities: priorities, liveSession: liveSession, health: healthMonitor, cache: cache}
}

// SetLastHealthResult updates the most recent health.CheckAll output
// consumed by Assemble (the scan loop calls this after each check).
func (a *Assembler) SetLastHealthResult(r health.CheckAllResult) {
	a.lastHealth = r
}

const projectSnapshotCacheKey = "contextassembler:projects"
const projectSnapshotTTL = 30 * time.Second

// Assemble produces the full Snapshot. recentDecisions, conversation,
// learnings, revenue, and trustLevel are supplied by the caller since
// they come from components C3 only reads, never owns.
func (a *Assembler) Assemble(ctx context.Context, recentDecisions []statefile.Decision, conversation []ConversationTurn, learnings []string, revenue map[string]float64, trustLevel string, pendingReminders int) Snapshot {
	snaps := a.projectSnapshots(ctx)

	return Snapshot{
		GeneratedAt:      time.Now(),
		Projects:         snaps,
		HealthDown:       a.lastHealth.DownServices,
		Revenue:          revenue,
		TrustLevel:       trustLevel,
		PendingReminders: pendingReminders,
		RecentDecisions:  recentDecisions,
		Conversation:     conversation,
		Learnings:        learnings,
	}
}

// AssembleWithResource is Assemble plus a fresh resource.Collect call,
// split out so callers that already have a snapshot can skip the
// gopsutil probe.
func (a *Assembler) AssembleWithResource(ctx context.Context, recentDecisions []statefile.Decision, conversation []ConversationTurn, learnings []string, revenue map[string]float64, trustLevel string, pendingReminders int) (Snapshot, error) {
	snap := a.Assemble(ctx, recentDecisions, conversation, learnings, revenue, trustLevel, pendingReminders)
	res, err := resource.Collect(ctx)
	if err != nil {
		return snap, err
	}
	snap.Resource = res
	return snap, nil
}

// projectSnapshots builds the priority-ranked project list, consulting
// the cache first (spec-supplemented optional L2 cache, SPEC_FULL.md
// §B — go-redis wiring).
func (a *Assembler) projectSnapshots(ctx context.Context) []ProjectSnapshot {
	if a.cache != nil {
		if raw, ok := a.cache.Get(ctx, projectSnapshotCacheKey); ok {
			var cached []ProjectSnapshot
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached
			}
		}
	}

	all := a.registry.All()
	snaps := make([]ProjectSnapshot, 0, len(all))
	for _, p := range all {
		snaps = append(snaps, ProjectSnapshot{
			Name:           p.Name,
			Phase:          p.Phase,
			Progress:       p.Progress,
			NeedsAttention: p.NeedsAttention,
			Reason:         p.Reason,
			Blockers:       p.Blockers,
			LiveSession:    a.liveSession != nil && a.liveSession(p.Name),
			Rank:           a.priorities.Rank(p.Name),
		})
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].NeedsAttention != snaps[j].NeedsAttention {
			return snaps[i].NeedsAttention
		}
		return snaps[i].Rank > snaps[j].Rank
	})

	if a.cache != nil {
		if raw, err := json.Marshal(snaps); err == nil {
			a.cache.Set(ctx, projectSnapshotCacheKey, raw, projectSnapshotTTL)
		}
	}

	return snaps
}
