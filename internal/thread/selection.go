package thread

import (
	"maps"
	"sync"
)

// Resolver maps a backbone position to the index of its active attempt.
type Resolver interface {
	Resolve(rootID string, groupSize int) int
}

// Selection records which attempt is active at each backbone position.
// Concurrent writers race last-write-wins per root id.
type Selection struct {
	mu    sync.RWMutex
	picks map[string]int
}

// NewSelection returns an empty selection: every position shows index 0.
func NewSelection() *Selection {
	return &Selection{picks: make(map[string]int)}
}

// Select overwrites the stored index for rootID. The index is not
// validated here; Resolve clamps it against the group it is applied to.
func (s *Selection) Select(rootID string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.picks == nil {
		s.picks = make(map[string]int)
	}
	s.picks[rootID] = index
}

// Resolve returns the stored index for rootID, or 0 when nothing is
// stored or the stored index falls outside [0, groupSize).
func (s *Selection) Resolve(rootID string, groupSize int) int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	idx, ok := s.picks[rootID]
	s.mu.RUnlock()
	if !ok || idx < 0 || idx >= groupSize {
		return 0
	}
	return idx
}

// Snapshot returns an independent copy safe to read while s keeps changing.
func (s *Selection) Snapshot() *Selection {
	return &Selection{picks: s.Picks()}
}

// Picks returns a copy of the stored entries, including inert ones whose
// runs no longer exist.
func (s *Selection) Picks() map[string]int {
	if s == nil {
		return map[string]int{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.picks))
	maps.Copy(out, s.picks)
	return out
}
