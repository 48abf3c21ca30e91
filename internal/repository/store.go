// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"encoding/json"

	"github.com/xiaot623/gogo/replay/internal/domain"
)

// Store defines the interface for run persistence.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.RunRecord) error
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
	ListRuns(ctx context.Context, parentRunID string, types []domain.RunType) ([]domain.RunRecord, error)
	UpdateRunFeedback(ctx context.Context, runID string, feedback json.RawMessage) (bool, error)
	DeleteRun(ctx context.Context, runID string) ([]string, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
