package domain

import (
	"encoding/json"
	"time"
)

// RunRecord is one recorded turn of an interaction as supplied by the
// run store. Records are read-only snapshots; only Feedback is ever
// rewritten, and only by the store.
type RunRecord struct {
	ID           string          `json:"id"`
	ParentRunID  string          `json:"parent_run_id,omitempty"`
	SiblingRunID string          `json:"sibling_run_id,omitempty"`
	Type         RunType         `json:"type"`
	Name         string          `json:"name,omitempty"`
	Input        Payload         `json:"input"`
	Output       Payload         `json:"output"`
	CreatedAt    time.Time       `json:"created_at"`
	EndedAt      time.Time       `json:"ended_at"`
	Feedback     json.RawMessage `json:"feedback,omitempty"`
	User         *UserRef        `json:"user,omitempty"`
}

// IsRoot reports whether the run anchors its own sibling group.
func (r *RunRecord) IsRoot() bool {
	return r.SiblingRunID == ""
}

// IsCustomEvent reports whether the run is a non-chat marker.
func (r *RunRecord) IsCustomEvent() bool {
	return r.Type == RunTypeCustomEvent
}

// Took returns the wall time of the turn.
func (r *RunRecord) Took() time.Duration {
	return r.EndedAt.Sub(r.CreatedAt)
}

// UserRef points at the external actor that originated a run.
type UserRef struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"external_id,omitempty"`
	Props      json.RawMessage `json:"props,omitempty"`
}

// Event represents an audit event recorded by the service.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
