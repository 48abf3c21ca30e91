// Package domain defines the core domain models for run replay.
package domain

// RunType discriminates conversational turns from other run records.
type RunType string

const (
	RunTypeChat        RunType = "chat"
	RunTypeCustomEvent RunType = "custom-event"
)

// Message roles the extractor knows about. Any other role string is
// passed through untouched.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAI        = "ai"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// IsInputRole reports whether role belongs to the input side of a turn.
func IsInputRole(role string) bool {
	return role == RoleUser
}

// IsOutputRole reports whether role belongs to the output side of a turn.
// Only output roles carry a took duration.
func IsOutputRole(role string) bool {
	switch role {
	case RoleAssistant, RoleAI, RoleSystem, RoleTool:
		return true
	}
	return false
}

// EventType represents the type of an audit event.
type EventType string

const (
	EventTypeRunIngested     EventType = "run_ingested"
	EventTypeFeedbackUpdated EventType = "feedback_updated"
	EventTypeRunDeleted      EventType = "run_deleted"
)
