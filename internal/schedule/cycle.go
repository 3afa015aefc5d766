// Package schedule decides which backup sets get a full backup and which get
// an incremental backup on a given day.
//
// Full backups follow a rotation cycle. The cycle lists every tier1 group,
// then interleaves tier1 and tier2 groups pairwise, then appends whatever is
// left of either tier:
//
//	tier1: a1 a2 a3   tier2: b1 b2
//	cycle: a1 a2 a3 a1 b1 a2 b2 a3
//
// Tier1 groups therefore come up about twice as often as tier2 groups. The
// position inside the cycle is derived from the number of days since the
// Unix epoch, so no state is kept between runs.
package schedule

import (
	"fmt"
	"strings"
)

// Group is an ordered list of backup set names scheduled on the same day.
type Group []string

// String renders the group as a comma separated list.
func (g Group) String() string {
	return strings.Join(g, ", ")
}

// Contains reports whether name is one of the group's sets.
func (g Group) Contains(name string) bool {
	for _, s := range g {
		if s == name {
			return true
		}
	}
	return false
}

func (g Group) clone() Group {
	return append(Group(nil), g...)
}

// Flatten concatenates the groups into a single list of set names.
func Flatten(groups []Group) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// CycleLength returns the number of days in one rotation cycle.
func CycleLength(tier1Len, tier2Len int) int {
	return 2*tier1Len + tier2Len
}

// BuildCycle returns the rotation cycle for the two tiers. The inputs are
// not modified.
func BuildCycle(tier1, tier2 []Group) ([]Group, error) {
	want := CycleLength(len(tier1), len(tier2))
	cycle := make([]Group, 0, want)

	for _, g := range tier1 {
		cycle = append(cycle, g.clone())
	}

	paired := min(len(tier1), len(tier2))
	for i := 0; i < paired; i++ {
		cycle = append(cycle, tier1[i].clone(), tier2[i].clone())
	}

	for _, g := range tier1[paired:] {
		cycle = append(cycle, g.clone())
	}
	for _, g := range tier2[paired:] {
		cycle = append(cycle, g.clone())
	}

	if len(cycle) != want {
		return nil, fmt.Errorf("rotation cycle has %d entries, expected 2*%d+%d=%d",
			len(cycle), len(tier1), len(tier2), want)
	}

	return cycle, nil
}
