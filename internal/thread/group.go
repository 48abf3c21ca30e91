package thread

import (
	"cmp"
	"slices"

	"github.com/xiaot623/gogo/replay/internal/domain"
)

// Grouping partitions a run snapshot into sibling groups.
type Grouping struct {
	// Roots is the backbone: every run without a sibling link, oldest first.
	Roots []domain.RunRecord
	// Groups maps a root id to the root followed by its retries, oldest first.
	Groups map[string][]domain.RunRecord
	// Orphans are retries whose original is missing from the snapshot.
	Orphans []domain.RunRecord
	// Excluded are retries kept out of every group because they or their
	// original are custom events.
	Excluded []domain.RunRecord
	// Duplicates lists ids that appeared more than once; the first copy wins.
	Duplicates []string
}

// GroupSiblings groups runs by the original they retry.
func GroupSiblings(runs []domain.RunRecord) Grouping {
	g := Grouping{Groups: make(map[string][]domain.RunRecord)}

	seen := make(map[string]bool, len(runs))
	var retries []domain.RunRecord
	for _, run := range runs {
		if seen[run.ID] {
			g.Duplicates = append(g.Duplicates, run.ID)
			continue
		}
		seen[run.ID] = true
		if run.IsRoot() {
			g.Roots = append(g.Roots, run)
			g.Groups[run.ID] = []domain.RunRecord{run}
			continue
		}
		if run.IsCustomEvent() {
			g.Excluded = append(g.Excluded, run)
			continue
		}
		retries = append(retries, run)
	}

	for _, run := range retries {
		group, ok := g.Groups[run.SiblingRunID]
		switch {
		case !ok:
			g.Orphans = append(g.Orphans, run)
		case group[0].IsCustomEvent():
			g.Excluded = append(g.Excluded, run)
		default:
			g.Groups[run.SiblingRunID] = append(group, run)
		}
	}

	slices.SortFunc(g.Roots, compareRuns)
	slices.SortFunc(g.Orphans, compareRuns)
	slices.SortFunc(g.Excluded, compareRuns)
	for _, group := range g.Groups {
		slices.SortFunc(group, compareRuns)
	}
	return g
}

// Group returns the ordered siblings anchored at rootID.
func (g Grouping) Group(rootID string) []domain.RunRecord {
	return g.Groups[rootID]
}

func compareRuns(a, b domain.RunRecord) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
