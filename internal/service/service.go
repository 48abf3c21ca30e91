package service

import (
	"errors"
	"sync"

	"github.com/xiaot623/gogo/replay/internal/config"
	"github.com/xiaot623/gogo/replay/internal/repository"
	"github.com/xiaot623/gogo/replay/internal/thread"
	"github.com/xiaot623/gogo/replay/policy"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrRunNotFound  = errors.New("run not found")
	ErrViewNotFound = errors.New("view not found")
	ErrForbidden    = errors.New("forbidden")
)

// Notifier pushes frames to the listeners of a view. rev is the view
// revision the frame was rendered at.
type Notifier interface {
	Publish(viewID string, rev uint64, v interface{}) error
}

// TranscriptUpdate is the frame pushed to a view's listeners whenever its
// transcript is recomputed. Seq grows with every change to the view;
// a frame with a lower Seq than one already seen is stale.
type TranscriptUpdate struct {
	Type       string            `json:"type"`
	ViewID     string            `json:"view_id"`
	Seq        uint64            `json:"seq"`
	Transcript thread.Transcript `json:"transcript"`
	Selection  map[string]int    `json:"selection"`
}

// NewTranscriptUpdate builds the frame for a rendered view state.
func NewTranscriptUpdate(viewID string, st thread.ViewState) TranscriptUpdate {
	return TranscriptUpdate{
		Type:       "transcript",
		ViewID:     viewID,
		Seq:        st.Revision,
		Transcript: st.Transcript,
		Selection:  st.Selection,
	}
}

type Service struct {
	store    store.Store
	config   *config.Config
	policy   *policy.Engine
	notifier Notifier

	mu    sync.RWMutex
	views map[string]*thread.View
}

// New creates the service. notifier may be nil.
func New(store store.Store, cfg *config.Config, policyEngine *policy.Engine, notifier Notifier) *Service {
	return &Service{
		store:    store,
		config:   cfg,
		policy:   policyEngine,
		notifier: notifier,
		views:    make(map[string]*thread.View),
	}
}
