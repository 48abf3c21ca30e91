package thread

import (
	"time"

	"github.com/xiaot623/gogo/replay/internal/domain"
)

// PositionKind tells a turn apart from a non-chat marker.
type PositionKind string

const (
	PositionTurn  PositionKind = "turn"
	PositionEvent PositionKind = "event"
)

// EventMarker is a non-conversational annotation on the backbone.
type EventMarker struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is one slot of the backbone with the messages of its active attempt.
type Position struct {
	Kind          PositionKind    `json:"kind"`
	RootRunID     string          `json:"root_run_id"`
	ActiveRunID   string          `json:"active_run_id,omitempty"`
	GroupSize     int             `json:"group_size"`
	SelectedIndex int             `json:"selected_index"`
	User          *domain.UserRef `json:"user,omitempty"`
	Input         []Message       `json:"input,omitempty"`
	Output        []Message       `json:"output,omitempty"`
	Event         *EventMarker    `json:"event,omitempty"`
}

// HasBranches reports whether a branch picker applies to the position.
func (p Position) HasBranches() bool {
	return p.GroupSize > 1
}

// Messages returns the input messages followed by the output messages.
func (p Position) Messages() []Message {
	out := make([]Message, 0, len(p.Input)+len(p.Output))
	out = append(out, p.Input...)
	return append(out, p.Output...)
}

// Transcript is the assembled conversation.
type Transcript struct {
	Positions []Position `json:"positions"`
	// Orphans lists retries excluded because their original is missing.
	Orphans []string `json:"orphans,omitempty"`
	// Excluded lists custom-event retries and retries of custom events.
	Excluded []string `json:"excluded,omitempty"`
	// Duplicates lists run ids seen more than once in the snapshot.
	Duplicates []string `json:"duplicates,omitempty"`
}

// ItemKind discriminates flattened transcript items.
type ItemKind string

const (
	ItemMessage ItemKind = "message"
	ItemEvent   ItemKind = "event"
)

// Item is a single role-tagged message or event marker, carrying the
// branch info of the position it came from.
type Item struct {
	Kind          ItemKind     `json:"kind"`
	RootRunID     string       `json:"root_run_id"`
	GroupSize     int          `json:"group_size"`
	SelectedIndex int          `json:"selected_index"`
	Message       *Message     `json:"message,omitempty"`
	Event         *EventMarker `json:"event,omitempty"`
}

// Items flattens the transcript in backbone order.
func (t Transcript) Items() []Item {
	var items []Item
	for _, pos := range t.Positions {
		if pos.Kind == PositionEvent {
			items = append(items, Item{
				Kind:      ItemEvent,
				RootRunID: pos.RootRunID,
				GroupSize: pos.GroupSize,
				Event:     pos.Event,
			})
			continue
		}
		for _, msg := range pos.Messages() {
			items = append(items, Item{
				Kind:          ItemMessage,
				RootRunID:     pos.RootRunID,
				GroupSize:     pos.GroupSize,
				SelectedIndex: pos.SelectedIndex,
				Message:       &msg,
			})
		}
	}
	return items
}

// Assemble walks the backbone of runs and emits, per position, either an
// event marker or the messages of the attempt chosen by sel. A nil sel
// shows the original attempt everywhere.
//
// Positions keep backbone order even when a later retry finished after
// the turns that follow it.
func Assemble(runs []domain.RunRecord, sel Resolver) Transcript {
	if s, ok := sel.(*Selection); ok {
		sel = s.Snapshot()
	}
	if sel == nil {
		sel = (*Selection)(nil)
	}

	grouping := GroupSiblings(runs)
	t := Transcript{
		Positions:  make([]Position, 0, len(grouping.Roots)),
		Duplicates: grouping.Duplicates,
	}
	for _, orphan := range grouping.Orphans {
		t.Orphans = append(t.Orphans, orphan.ID)
	}
	for _, run := range grouping.Excluded {
		t.Excluded = append(t.Excluded, run.ID)
	}

	for i := range grouping.Roots {
		root := &grouping.Roots[i]
		if root.IsCustomEvent() {
			t.Positions = append(t.Positions, Position{
				Kind:      PositionEvent,
				RootRunID: root.ID,
				GroupSize: 1,
				Event: &EventMarker{
					RunID:     root.ID,
					Name:      root.Name,
					Timestamp: root.CreatedAt,
				},
			})
			continue
		}

		group := grouping.Group(root.ID)
		idx := sel.Resolve(root.ID, len(group))
		active := &group[idx]
		input, output := ExtractRun(active)
		t.Positions = append(t.Positions, Position{
			Kind:          PositionTurn,
			RootRunID:     root.ID,
			ActiveRunID:   active.ID,
			GroupSize:     len(group),
			SelectedIndex: idx,
			User:          root.User,
			Input:         input,
			Output:        output,
		})
	}
	return t
}
