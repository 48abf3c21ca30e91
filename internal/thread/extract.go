// Package thread rebuilds a branch-aware chat transcript from a flat
// snapshot of run records.
//
// Every function in this package is a pure computation over its
// arguments except Selection and View, which hold caller state.
package thread

import (
	"encoding/json"
	"time"

	"github.com/xiaot623/gogo/replay/internal/domain"
)

// Message is a normalized chat message derived from one run payload item.
type Message struct {
	Role         string          `json:"role"`
	Content      json.RawMessage `json:"content"`
	Timestamp    time.Time       `json:"timestamp"`
	SourceRunID  string          `json:"source_run_id"`
	Feedback     json.RawMessage `json:"feedback,omitempty"`
	Enrichments  json.RawMessage `json:"enrichments,omitempty"`
	SiblingRunID string          `json:"sibling_run_id,omitempty"`
	TookMs       *int64          `json:"took_ms,omitempty"`
}

// Extract turns a payload into messages owned by run.
//
// Input-class hints stamp messages with the run's start time, every other
// hint with its end time. Items without content are dropped.
func Extract(p domain.Payload, roleHint string, run *domain.RunRecord) []Message {
	switch p.Kind {
	case domain.PayloadList:
		var out []Message
		for _, item := range p.Items {
			out = append(out, Extract(item, roleHint, run)...)
		}
		return out
	case domain.PayloadText:
		return []Message{newMessage(roleHint, domain.StringContent(p.Text), nil, roleHint, run)}
	case domain.PayloadMessage:
		if p.Message == nil || p.Message.Content == nil {
			return nil
		}
		role := p.Message.Role
		if role == "" {
			role = roleHint
		}
		return []Message{newMessage(role, p.Message.Content, p.Message.Enrichments, roleHint, run)}
	}
	return nil
}

// ExtractRun extracts the input side as user messages and the output side
// as assistant messages.
func ExtractRun(run *domain.RunRecord) (input, output []Message) {
	return Extract(run.Input, domain.RoleUser, run), Extract(run.Output, domain.RoleAssistant, run)
}

func newMessage(role string, content, enrichments json.RawMessage, roleHint string, run *domain.RunRecord) Message {
	msg := Message{
		Role:         role,
		Content:      content,
		Timestamp:    run.EndedAt,
		SourceRunID:  run.ID,
		Feedback:     run.Feedback,
		Enrichments:  enrichments,
		SiblingRunID: run.SiblingRunID,
	}
	if domain.IsInputRole(roleHint) {
		msg.Timestamp = run.CreatedAt
	}
	if domain.IsOutputRole(role) {
		took := run.Took().Milliseconds()
		msg.TookMs = &took
	}
	return msg
}
