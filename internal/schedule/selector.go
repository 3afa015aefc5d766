package schedule

import (
	"fmt"
	"time"
)

// Level is the kind of backup performed on a set.
type Level string

const (
	LevelFull        Level = "full"
	LevelIncremental Level = "incremental"
)

// Frequencies holds the per-tier incremental backup frequency in days. A tier
// gets an incremental backup when the cycle index is a multiple of its value.
type Frequencies struct {
	Tier1 int `json:"tier1" yaml:"tier1"`
	Tier2 int `json:"tier2" yaml:"tier2"`
}

// SelectInput carries everything Select needs.
type SelectInput struct {
	Cycle       []Group
	Index       int
	Tier1       []Group
	Tier2       []Group
	Frequencies Frequencies
}

// Plan is the outcome of scheduling for one day.
type Plan struct {
	Date             time.Time `json:"date" yaml:"date"`
	Index            int       `json:"cycle_index" yaml:"cycle_index"`
	CycleLength      int       `json:"cycle_length" yaml:"cycle_length"`
	Full             Group     `json:"full" yaml:"full"`
	Incremental      []string  `json:"incremental" yaml:"incremental"`
	Tier1Incremental bool      `json:"tier1_incremental" yaml:"tier1_incremental"`
	Tier2Incremental bool      `json:"tier2_incremental" yaml:"tier2_incremental"`
}

// Select computes the full and incremental sets for the given cycle index.
// The incremental set never contains a set that is backed up in full.
func Select(in SelectInput) (*Plan, error) {
	if in.Frequencies.Tier1 <= 0 || in.Frequencies.Tier2 <= 0 {
		return nil, fmt.Errorf("incremental frequencies must be positive, got tier1=%d tier2=%d",
			in.Frequencies.Tier1, in.Frequencies.Tier2)
	}
	if in.Index < 0 || in.Index >= len(in.Cycle) {
		return nil, fmt.Errorf("cycle index %d out of range [0, %d)", in.Index, len(in.Cycle))
	}

	plan := &Plan{
		Index:            in.Index,
		CycleLength:      len(in.Cycle),
		Full:             in.Cycle[in.Index].clone(),
		Tier1Incremental: in.Index%in.Frequencies.Tier1 == 0,
		Tier2Incremental: in.Index%in.Frequencies.Tier2 == 0,
	}

	var candidates []string
	if plan.Tier1Incremental {
		candidates = append(candidates, Flatten(in.Tier1)...)
	}
	if plan.Tier2Incremental {
		candidates = append(candidates, Flatten(in.Tier2)...)
	}

	seen := make(map[string]bool, len(candidates))
	incremental := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if plan.Full.Contains(name) || seen[name] {
			continue
		}
		seen[name] = true
		incremental = append(incremental, name)
	}
	plan.Incremental = incremental

	return plan, nil
}

// PlanFor builds the cycle, locates now in it and selects the day's sets.
func PlanFor(tier1, tier2 []Group, freq Frequencies, now time.Time) (*Plan, error) {
	cycle, err := BuildCycle(tier1, tier2)
	if err != nil {
		return nil, err
	}

	index, err := CycleIndex(len(cycle), now)
	if err != nil {
		return nil, err
	}

	plan, err := Select(SelectInput{
		Cycle:       cycle,
		Index:       index,
		Tier1:       tier1,
		Tier2:       tier2,
		Frequencies: freq,
	})
	if err != nil {
		return nil, err
	}

	plan.Date = now.UTC().Truncate(24 * time.Hour)
	return plan, nil
}
