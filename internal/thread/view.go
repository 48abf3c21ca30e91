package thread

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/xiaot623/gogo/replay/internal/domain"
)

// FeedbackPatch is a feedback write the store has confirmed.
type FeedbackPatch struct {
	RunID    string          `json:"run_id"`
	Feedback json.RawMessage `json:"feedback"`
}

// Apply returns a copy of runs with the patched run's feedback replaced.
// runs itself is never modified. ok is false when no run matched.
func (p FeedbackPatch) Apply(runs []domain.RunRecord) (patched []domain.RunRecord, ok bool) {
	patched = slices.Clone(runs)
	for i := range patched {
		if patched[i].ID == p.RunID {
			patched[i].Feedback = p.Feedback
			ok = true
		}
	}
	return patched, ok
}

// View is one caller's open replay of a conversation: the last confirmed
// run snapshot plus the branch selections made while it was open.
//
// Every change bumps the view's revision; changes to the held runs also
// bump its data revision, which guards Replace against stale fetches.
type View struct {
	ID             string
	ConversationID string

	mu        sync.Mutex
	runs      []domain.RunRecord
	selection *Selection
	touched   time.Time
	revision  uint64
	data      uint64
}

// ViewState is a transcript together with the selection it was assembled
// under and the view revision it reflects.
type ViewState struct {
	Transcript Transcript
	Selection  map[string]int
	Revision   uint64
}

// NewView returns an empty view with no selections.
func NewView(id, conversationID string) *View {
	return &View{
		ID:             id,
		ConversationID: conversationID,
		selection:      NewSelection(),
		touched:        time.Now(),
	}
}

// DataRevision returns a token to pass to ReplaceIf after a fetch.
func (v *View) DataRevision() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data
}

// Replace swaps in a fresh snapshot. Selections are kept; entries for
// runs missing from the new snapshot stay inert.
func (v *View) Replace(runs []domain.RunRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.replace(runs)
}

// ReplaceIf swaps in runs only if the held snapshot has not changed since
// DataRevision returned token. A false result means a newer confirmed
// change landed while runs was being fetched.
func (v *View) ReplaceIf(token uint64, runs []domain.RunRecord) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.data != token {
		return false
	}
	v.replace(runs)
	return true
}

func (v *View) replace(runs []domain.RunRecord) {
	v.runs = slices.Clone(runs)
	v.touched = time.Now()
	v.data++
	v.revision++
}

// Apply patches the held snapshot. It reports whether the view held the run.
func (v *View) Apply(p FeedbackPatch) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	patched, ok := p.Apply(v.runs)
	if ok {
		v.runs = patched
		v.data++
		v.revision++
	}
	return ok
}

// Select overwrites the active attempt for one backbone position.
func (v *View) Select(rootID string, index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection.Select(rootID, index)
	v.touched = time.Now()
	v.revision++
}

// Contains reports whether the held snapshot includes runID.
func (v *View) Contains(runID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.ContainsFunc(v.runs, func(r domain.RunRecord) bool { return r.ID == runID })
}

// State assembles the held snapshot under the current selection. The
// transcript, selection and revision are read together.
func (v *View) State() ViewState {
	v.mu.Lock()
	runs := v.runs
	sel := v.selection.Snapshot()
	rev := v.revision
	v.mu.Unlock()
	return ViewState{
		Transcript: Assemble(runs, sel),
		Selection:  sel.Picks(),
		Revision:   rev,
	}
}

// Transcript assembles the held snapshot under the current selection.
func (v *View) Transcript() Transcript {
	return v.State().Transcript
}

// Selection returns a copy of the view's selection.
func (v *View) Selection() *Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selection.Snapshot()
}

// IdleSince returns the last time the view was refreshed or changed.
func (v *View) IdleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.touched
}
