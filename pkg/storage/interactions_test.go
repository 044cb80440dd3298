package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractionStoreNewestFirst(t *testing.T) {
	s := NewInteractionStore(NewMemoryStore())

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(&Interaction{
			ID:     fmt.Sprintf("i%d", i),
			Action: ActionView,
			At:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := s.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	for i := 1; i < len(recent); i++ {
		assert.True(t, recent[i-1].At.After(recent[i].At),
			"entries must come back newest first")
	}

	limited, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "i4", limited[0].ID)
	assert.Equal(t, "i3", limited[1].ID)
}

func TestInteractionStoreValidation(t *testing.T) {
	s := NewInteractionStore(NewMemoryStore())

	err := s.Append(&Interaction{ID: "i1", Action: "bogus", At: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidData)

	err = s.Append(&Interaction{Action: ActionView, At: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidID)

	err = s.Append(&Interaction{ID: "i1", Action: ActionView})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestInteractionStorePurgeOlderThan(t *testing.T) {
	s := NewInteractionStore(NewMemoryStore())

	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(&Interaction{
			ID:     fmt.Sprintf("old%d", i),
			Action: ActionView,
			At:     now.Add(-time.Duration(i+1) * 24 * time.Hour),
		}))
	}
	require.NoError(t, s.Append(&Interaction{ID: "fresh", Action: ActionView, At: now.Add(time.Hour)}))

	// Cutoff at now removes the ten older entries, keeps the fresh one.
	removed, err := s.PurgeOlderThan(now)
	require.NoError(t, err)
	assert.Equal(t, 10, removed)

	count, err := s.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestInteractionStorePurgeEverything(t *testing.T) {
	s := NewInteractionStore(NewMemoryStore())

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(&Interaction{
			ID:     fmt.Sprintf("i%d", i),
			Action: ActionSearch,
			At:     now.Add(-time.Duration(i) * time.Second),
		}))
	}

	removed, err := s.PurgeOlderThan(now)
	require.NoError(t, err)
	assert.Equal(t, 10, removed, "a cutoff of now purges everything at or before now")

	count, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}
