package projects

import (
	"os"
	"path/filepath"
	"testing"
)

type stubScanner struct {
	res ScanResult
	err error
}

func (s stubScanner) Scan(workDir string) (ScanResult, error) { return s.res, s.err }

func TestRegistryAllPreservesConfiguredOrder(t *testing.T) {
	r := NewRegistry("/projects", []string{"b-proj", "a-proj", "c-proj"})
	all := r.All()
	if len(all) != 3 {
		t.Fatalf("want 3 projects, got %d", len(all))
	}
	got := []string{all[0].Name, all[1].Name, all[2].Name}
	want := []string{"b-proj", "a-proj", "c-proj"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestRegistryKnownAndGet(t *testing.T) {
	r := NewRegistry("/projects", []string{"alpha"})
	if !r.Known("alpha") {
		t.Error("alpha should be known")
	}
	if r.Known("missing") {
		t.Error("missing should not be known")
	}
	if r.Get("missing") != nil {
		t.Error("Get of unknown project should return nil")
	}
	if p := r.Get("alpha"); p == nil || p.WorkDir != "/projects/alpha" {
		t.Errorf("unexpected project: %+v", p)
	}
}

func TestRegistryRefreshAppliesScanResults(t *testing.T) {
	r := NewRegistry("/projects", []string{"alpha", "beta"})
	scanner := stubScanner{res: ScanResult{
		Phase: "build", Progress: "60%", NeedsAttention: true,
		Reason: "blocked on review", Blockers: []string{"waiting on CI"},
	}}
	r.Refresh(scanner)

	for _, name := range []string{"alpha", "beta"} {
		p := r.Get(name)
		if p.Phase != "build" || !p.NeedsAttention || p.Reason != "blocked on review" {
			t.Errorf("project %s not refreshed: %+v", name, p)
		}
		if p.LastScanned.IsZero() {
			t.Errorf("project %s LastScanned not stamped", name)
		}
	}
}

func TestRegistryRefreshToleratesScanError(t *testing.T) {
	r := NewRegistry("/projects", []string{"alpha"})
	before := r.Get("alpha").Phase
	r.Refresh(stubScanner{err: os.ErrNotExist})
	if r.Get("alpha").Phase != before {
		t.Error("a scan error should leave the project state untouched")
	}
}

func TestMarkdownScannerParsesStatusFile(t *testing.T) {
	dir := t.TempDir()
	content := "Phase: implement\nProgress: 40%\nNeeds-Attention: yes\nReason: flaky test\nBlocker: missing credentials\nBlocker: CI down\n"
	if err := os.WriteFile(filepath.Join(dir, "STATUS.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewMarkdownScanner()
	res, err := s.Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Phase != "implement" || res.Progress != "40%" || !res.NeedsAttention || res.Reason != "flaky test" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Blockers) != 2 || res.Blockers[0] != "missing credentials" || res.Blockers[1] != "CI down" {
		t.Errorf("unexpected blockers: %+v", res.Blockers)
	}
}

func TestMarkdownScannerNoStatusFile(t *testing.T) {
	dir := t.TempDir()
	s := NewMarkdownScanner()
	res, err := s.Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Phase != "" || res.NeedsAttention {
		t.Errorf("expected zero-value result for missing status file, got %+v", res)
	}
}

func TestPriorityOverridesRank(t *testing.T) {
	po := PriorityOverrides{
		Weight: map[string]int{"alpha": 5, "beta": 2},
		Pinned: []string{"urgent-proj"},
	}
	if po.Rank("urgent-proj") <= po.Rank("alpha") {
		t.Error("pinned project should outrank any weighted project")
	}
	if po.Rank("alpha") != 5 {
		t.Errorf("alpha rank = %d, want 5", po.Rank("alpha"))
	}
	if po.Rank("unknown") != 0 {
		t.Errorf("unknown project rank = %d, want 0", po.Rank("unknown"))
	}
}

func TestLoadPriorityOverridesMissingFile(t *testing.T) {
	po, err := LoadPriorityOverrides(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if po.Weight == nil || len(po.Weight) != 0 {
		t.Errorf("expected empty weight map, got %+v", po.Weight)
	}
}

func TestLoadPriorityOverridesParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "priorities.json")
	content := `{"weight":{"alpha":3},"pinned":["beta"]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	po, err := LoadPriorityOverrides(path)
	if err != nil {
		t.Fatalf("LoadPriorityOverrides: %v", err)
	}
	if po.Weight["alpha"] != 3 {
		t.Errorf("alpha weight = %d, want 3", po.Weight["alpha"])
	}
	if len(po.Pinned) != 1 || po.Pinned[0] != "beta" {
		t.Errorf("unexpected pinned: %+v", po.Pinned)
	}
}
