package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/gogo/replay/internal/domain"
	"github.com/xiaot623/gogo/replay/internal/thread"
)

// OpenView starts a replay of a conversation with an empty selection.
func (s *Service) OpenView(ctx context.Context, conversationID string) (*domain.OpenViewResponse, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidInput)
	}
	runs, err := s.FetchRuns(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	v := thread.NewView("view_"+uuid.New().String()[:8], conversationID)
	v.Replace(runs)

	s.mu.Lock()
	s.views[v.ID] = v
	s.mu.Unlock()

	return &domain.OpenViewResponse{ViewID: v.ID, ConversationID: conversationID}, nil
}

// CloseView discards a view and its selections.
func (s *Service) CloseView(viewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[viewID]; !ok {
		return ErrViewNotFound
	}
	delete(s.views, viewID)
	return nil
}

// maxRefreshAttempts bounds how often a refresh is retried when a
// confirmed change lands during the fetch.
const maxRefreshAttempts = 3

// Transcript refetches the conversation and assembles it under the view's
// selection. A failed fetch keeps the previous snapshot.
func (s *Service) Transcript(ctx context.Context, viewID string) (thread.ViewState, error) {
	v, err := s.view(viewID)
	if err != nil {
		return thread.ViewState{}, err
	}
	if err := s.refresh(ctx, v); err != nil {
		return thread.ViewState{}, err
	}
	return s.render(v), nil
}

// State assembles the view from its held snapshot without refetching.
func (s *Service) State(viewID string) (thread.ViewState, error) {
	v, err := s.view(viewID)
	if err != nil {
		return thread.ViewState{}, err
	}
	return s.render(v), nil
}

// SelectBranch makes the attempt at index active for one backbone
// position and returns the recomputed transcript. Out-of-range indexes
// are kept and resolve to the original attempt.
func (s *Service) SelectBranch(ctx context.Context, viewID, rootRunID string, index int) (thread.ViewState, error) {
	if rootRunID == "" {
		return thread.ViewState{}, fmt.Errorf("%w: root_run_id is required", ErrInvalidInput)
	}
	v, err := s.view(viewID)
	if err != nil {
		return thread.ViewState{}, err
	}
	v.Select(rootRunID, index)
	st := s.render(v)
	s.publish(v, st)
	return st, nil
}

// refresh loads fresh runs into v. A fetch that raced a confirmed change
// to the held runs is discarded and retried; if every attempt races, v
// keeps the newer runs it already holds.
func (s *Service) refresh(ctx context.Context, v *thread.View) error {
	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		token := v.DataRevision()
		runs, err := s.FetchRuns(ctx, v.ConversationID)
		if err != nil {
			return err
		}
		if v.ReplaceIf(token, runs) {
			return nil
		}
	}
	log.Printf("WARN: view %s kept its snapshot after %d racing refreshes", v.ID, maxRefreshAttempts)
	return nil
}

// RunViewSweeper closes views idle for longer than the configured timeout
// until ctx is done. It returns immediately when the timeout is zero.
func (s *Service) RunViewSweeper(ctx context.Context) {
	timeout := s.config.ViewIdleTimeout
	if timeout <= 0 {
		return
	}
	interval := timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sweepIdleViews(now); n > 0 {
				log.Printf("INFO: closed %d idle views", n)
			}
		}
	}
}

func (s *Service) sweepIdleViews(now time.Time) int {
	cutoff := now.Add(-s.config.ViewIdleTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for id, v := range s.views {
		if v.IdleSince().Before(cutoff) {
			delete(s.views, id)
			closed++
		}
	}
	return closed
}

func (s *Service) view(viewID string) (*thread.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[viewID]
	if !ok {
		return nil, ErrViewNotFound
	}
	return v, nil
}

func (s *Service) listViews() []*thread.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make([]*thread.View, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	return views
}

// render builds the view's state and logs what the grouper excluded.
func (s *Service) render(v *thread.View) thread.ViewState {
	st := v.State()
	tr := st.Transcript
	if len(tr.Orphans) > 0 {
		log.Printf("WARN: view %s: %d orphaned retries excluded from conversation %s: %v",
			v.ID, len(tr.Orphans), v.ConversationID, tr.Orphans)
	}
	if len(tr.Excluded) > 0 {
		log.Printf("WARN: view %s: custom-event runs kept out of sibling groups in conversation %s: %v",
			v.ID, v.ConversationID, tr.Excluded)
	}
	if len(tr.Duplicates) > 0 {
		log.Printf("WARN: view %s: duplicate run ids in conversation %s: %v",
			v.ID, v.ConversationID, tr.Duplicates)
	}
	return st
}

// refreshViews refetches every open view matching match and pushes the
// new transcript to its listeners.
func (s *Service) refreshViews(ctx context.Context, match func(*thread.View) bool) {
	for _, v := range s.listViews() {
		if !match(v) {
			continue
		}
		if err := s.refresh(ctx, v); err != nil {
			log.Printf("WARN: failed to refresh view %s: %v", v.ID, err)
			continue
		}
		s.publish(v, s.render(v))
	}
}

func (s *Service) publish(v *thread.View, st thread.ViewState) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(v.ID, st.Revision, NewTranscriptUpdate(v.ID, st)); err != nil {
		log.Printf("WARN: failed to publish transcript for view %s: %v", v.ID, err)
	}
}
