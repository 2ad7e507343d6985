// Package stage defines pipeline stages, their typed outputs and the Runner
// that executes one stage with retries, backoff and per-attempt timeouts.
package stage

import (
	"fmt"
	"strings"
)

// Name identifies a pipeline stage.
type Name string

const (
	Input    Name = "input"
	Research Name = "research"
	Design   Name = "design"
	Content  Name = "content"
)

// Order is the fixed execution order of a run.
var Order = []Name{Input, Research, Design, Content}

// Skippable reports whether a run may skip the stage.
func (n Name) Skippable() bool { return n == Research }

// Valid reports whether n is a known stage.
func (n Name) Valid() bool {
	switch n {
	case Input, Research, Design, Content:
		return true
	}
	return false
}

// Next returns the stage after n, or "" when n is the last stage.
func (n Name) Next() Name {
	for i, s := range Order {
		if s == n && i+1 < len(Order) {
			return Order[i+1]
		}
	}
	return ""
}

// ParseName parses a stage name case-insensitively.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return n, nil
}

// ModelTier selects the generation model class.
type ModelTier string

const (
	TierFast    ModelTier = "fast"
	TierQuality ModelTier = "quality"
)

// ParseTier parses a tier name. An empty string yields TierFast.
func ParseTier(s string) (ModelTier, error) {
	switch t := ModelTier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TierFast, nil
	case TierFast, TierQuality:
		return t, nil
	}
	return "", fmt.Errorf("unknown model tier %q", s)
}

// Rank orders tiers so a forced rerun can demand a higher one.
func (t ModelTier) Rank() int {
	if t == TierQuality {
		return 1
	}
	return 0
}
