package domain

import (
	"encoding/json"
	"time"
)

// FeedbackRequest represents a feedback write for a single run.
type FeedbackRequest struct {
	Feedback json.RawMessage `json:"feedback"`
}

// FeedbackResponse reports a confirmed feedback write.
type FeedbackResponse struct {
	RunID    string          `json:"run_id"`
	Feedback json.RawMessage `json:"feedback"`
}

// SelectBranchRequest picks the active attempt at one backbone position.
type SelectBranchRequest struct {
	RootRunID string `json:"root_run_id"`
	Index     int    `json:"index"`
}

// OpenViewResponse represents a newly opened replay view.
type OpenViewResponse struct {
	ViewID         string `json:"view_id"`
	ConversationID string `json:"conversation_id"`
}

// DeleteRunResponse lists every run removed by a cascading delete.
type DeleteRunResponse struct {
	Deleted []string `json:"deleted"`
}

// ConversationSummary is the header shown above a replay.
type ConversationSummary struct {
	ConversationID string     `json:"conversation_id"`
	User           *UserRef   `json:"user,omitempty"`
	FirstMessageAt time.Time  `json:"first_message_at"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	RunCount       int        `json:"run_count"`
}
