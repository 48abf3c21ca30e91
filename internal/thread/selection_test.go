package thread

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectionResolveDefaultsAndClamps(t *testing.T) {
	s := NewSelection()
	assert.Equal(t, 0, s.Resolve("a", 3))

	s.Select("a", 2)
	assert.Equal(t, 2, s.Resolve("a", 3))

	s.Select("a", 3)
	assert.Equal(t, 0, s.Resolve("a", 3))

	s.Select("a", -1)
	assert.Equal(t, 0, s.Resolve("a", 3))
}

func TestSelectionSingleBranchAlwaysZero(t *testing.T) {
	s := NewSelection()
	for _, idx := range []int{0, 1, 5, -3} {
		s.Select("solo", idx)
		assert.Equal(t, 0, s.Resolve("solo", 1))
	}
}

func TestSelectionZeroValueAndNil(t *testing.T) {
	var s Selection
	s.Select("a", 1)
	assert.Equal(t, 1, s.Resolve("a", 2))

	var nilSel *Selection
	assert.Equal(t, 0, nilSel.Resolve("a", 2))
	assert.Empty(t, nilSel.Picks())
}

func TestSelectionSnapshotIsIndependent(t *testing.T) {
	s := NewSelection()
	s.Select("a", 1)
	snap := s.Snapshot()

	s.Select("a", 2)
	s.Select("b", 1)
	assert.Equal(t, 1, snap.Resolve("a", 3))
	assert.Equal(t, 0, snap.Resolve("b", 3))
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, s.Picks())
}

func TestSelectionConcurrentWriters(t *testing.T) {
	s := NewSelection()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Select(fmt.Sprintf("root-%d", i%4), i)
			_ = s.Resolve("root-0", 16)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Picks(), 4)
}
