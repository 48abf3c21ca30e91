package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/xiaot623/gogo/replay/internal/domain"
	"github.com/xiaot623/gogo/replay/internal/thread"
	"github.com/xiaot623/gogo/replay/policy"
)

// replayTypes are the run types that take part in a chat replay.
var replayTypes = []domain.RunType{domain.RunTypeChat, domain.RunTypeCustomEvent}

// IngestRun stores a run record and refreshes open views of its conversation.
func (s *Service) IngestRun(ctx context.Context, run *domain.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if run.SiblingRunID == run.ID {
		return fmt.Errorf("%w: run %s cannot retry itself", ErrInvalidInput, run.ID)
	}
	if run.Type == "" {
		run.Type = domain.RunTypeChat
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.EndedAt.IsZero() {
		run.EndedAt = run.CreatedAt
	}

	existing, err := s.store.GetRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: run %s already exists", ErrInvalidInput, run.ID)
	}

	if err := s.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	if err := s.recordEvent(ctx, run.ID, domain.EventTypeRunIngested, map[string]interface{}{
		"parent_run_id":  run.ParentRunID,
		"sibling_run_id": run.SiblingRunID,
		"type":           run.Type,
	}); err != nil {
		log.Printf("ERROR: failed to record run_ingested event: %v", err)
	}

	if run.ParentRunID != "" {
		s.refreshViews(ctx, func(v *thread.View) bool { return v.ConversationID == run.ParentRunID })
	}
	return nil
}

// GetRun returns a single run.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// FetchRuns returns a fresh snapshot of the replayable runs of a conversation.
func (s *Service) FetchRuns(ctx context.Context, conversationID string) ([]domain.RunRecord, error) {
	runs, err := s.store.ListRuns(ctx, conversationID, replayTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// UpdateFeedback writes feedback for a run. Only after the store confirms
// the write is the patch applied to open views; a failed write leaves
// every view as it was.
func (s *Service) UpdateFeedback(ctx context.Context, runID string, feedback json.RawMessage) (*thread.FeedbackPatch, error) {
	if len(feedback) > 0 && !json.Valid(feedback) {
		return nil, fmt.Errorf("%w: feedback is not valid JSON", ErrInvalidInput)
	}
	if string(feedback) == "null" {
		feedback = nil
	}

	updated, err := s.store.UpdateRunFeedback(ctx, runID, feedback)
	if err != nil {
		return nil, fmt.Errorf("failed to update feedback: %w", err)
	}
	if !updated {
		return nil, ErrRunNotFound
	}

	patch := &thread.FeedbackPatch{RunID: runID, Feedback: feedback}
	for _, v := range s.listViews() {
		if v.Apply(*patch) {
			s.publish(v, v.State())
		}
	}

	if err := s.recordEvent(ctx, runID, domain.EventTypeFeedbackUpdated, map[string]interface{}{
		"feedback": feedback,
	}); err != nil {
		log.Printf("ERROR: failed to record feedback_updated event: %v", err)
	}
	return patch, nil
}

// DeleteRun removes a run, its retries and everything nested under them,
// provided role may delete logs. Open views drop the removed runs; their
// branch selections stay behind, inert.
func (s *Service) DeleteRun(ctx context.Context, role, runID string) ([]string, error) {
	allowed, err := s.policy.Allowed(ctx, role, policy.ResourceLogs, policy.ActionDelete)
	if err != nil {
		return nil, fmt.Errorf("failed to check access: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: role %q may not delete runs", ErrForbidden, role)
	}

	deleted, err := s.store.DeleteRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete run: %w", err)
	}
	if deleted == nil {
		return nil, ErrRunNotFound
	}

	if err := s.recordEvent(ctx, runID, domain.EventTypeRunDeleted, map[string]interface{}{
		"deleted": deleted,
		"role":    role,
	}); err != nil {
		log.Printf("ERROR: failed to record run_deleted event: %v", err)
	}

	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}
	s.refreshViews(ctx, func(v *thread.View) bool {
		if gone[v.ConversationID] {
			return true
		}
		for id := range gone {
			if v.Contains(id) {
				return true
			}
		}
		return false
	})
	return deleted, nil
}

// Summary returns the replay header of a conversation.
func (s *Service) Summary(ctx context.Context, conversationID string) (*domain.ConversationSummary, error) {
	conversation, err := s.store.GetRun(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	runs, err := s.FetchRuns(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil && len(runs) == 0 {
		return nil, ErrRunNotFound
	}

	summary := &domain.ConversationSummary{
		ConversationID: conversationID,
		RunCount:       len(runs),
	}
	if conversation != nil {
		summary.User = conversation.User
		summary.FirstMessageAt = conversation.CreatedAt
	}
	for i := range runs {
		run := &runs[i]
		if conversation == nil && (summary.FirstMessageAt.IsZero() || run.CreatedAt.Before(summary.FirstMessageAt)) {
			summary.FirstMessageAt = run.CreatedAt
		}
		if summary.LastMessageAt == nil || run.CreatedAt.After(*summary.LastMessageAt) {
			last := run.CreatedAt
			summary.LastMessageAt = &last
		}
		if summary.User == nil && run.User != nil {
			summary.User = run.User
		}
	}
	return summary, nil
}
