package projects

import (
	"encoding/json"
	"os"
)

// PriorityOverrides is the operator-maintained `priorities.json` file
// (spec §1 names it as an out-of-scope external input). C3's context
// assembler consults it to bias which needsAttention projects surface
// first in the oracle prompt (SPEC_FULL.md §C).
type PriorityOverrides struct {
	// Weight maps project name -> an operator-assigned priority bump,
	// higher sorts first. Projects absent from the map get weight 0.
	Weight map[string]int `json:"weight"`
	// Pinned lists projects that should always appear first regardless
	// of weight.
	Pinned []string `json:"pinned"`
}

// LoadPriorityOverrides reads path, tolerating a missing file (returns an
// empty, zero-value overrides set) since the file is entirely optional.
func LoadPriorityOverrides(path string) (PriorityOverrides, error) {
	var po PriorityOverrides
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return po, nil
		}
		return po, err
	}
	if err := json.Unmarshal(raw, &po); err != nil {
		return po, err
	}
	if po.Weight == nil {
		po.Weight = make(map[string]int)
	}
	return po, nil
}

// Rank returns the sort weight for project: pinned projects get a weight
// far above any plausible operator-assigned value, otherwise the
// configured weight (0 if absent).
func (po PriorityOverrides) Rank(project string) int {
	for i, p := range po.Pinned {
		if p == project {
			return 1_000_000 - i
		}
	}
	return po.Weight[project]
}
