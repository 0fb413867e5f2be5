// Package snapshottest provides the behavioral contract shared by every
// snapshot.Store implementation.
package snapshottest

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

var red = grid.MustParseColor("#ff0000ff")

// Paint returns s.Grid with one cell recolored.
func Paint(t *testing.T, s *snapshot.Snapshot, index int, c grid.Color) *grid.Grid {
	t.Helper()
	g, err := s.Grid.Apply([]grid.UpdateAction{{Index: index, Color: c}})
	require.NoError(t, err)
	return g
}

// Run checks newStore against the Store contract. Each subtest gets a fresh
// store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) snapshot.Store) {
	ctx := context.Background()

	t.Run("create project", func(t *testing.T) {
		store := newStore(t)
		project, first, err := store.CreateProject(ctx, 2, 3)
		require.NoError(t, err)
		assert.NotEmpty(t, project.ID)
		assert.Equal(t, project.ID, first.ProjectID)
		assert.Equal(t, snapshot.InitialMessage, first.Message)
		assert.Equal(t, 6, first.Grid.Len())
		for _, c := range first.Grid.Cells {
			assert.Equal(t, grid.White, c)
		}

		latest, err := store.GetLatest(ctx, project.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, latest.ID)
	})

	t.Run("create rejects bad dimensions", func(t *testing.T) {
		store := newStore(t)
		_, _, err := store.CreateProject(ctx, 0, 4)
		assert.True(t, errors.Is(errors.KindInvalid, err))
		_, _, err = store.CreateProject(ctx, 4, grid.MaxDimension+1)
		assert.True(t, errors.Is(errors.KindInvalid, err))
	})

	t.Run("unknown ids", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetLatest(ctx, "missing")
		assert.True(t, errors.Is(errors.KindNoSuchProject, err))
		assert.True(t, stderrors.Is(err, snapshot.ErrNoSuchProject))

		project, _, err := store.CreateProject(ctx, 2, 2)
		require.NoError(t, err)
		_, err = store.GetByID(ctx, project.ID, "missing")
		assert.True(t, errors.Is(errors.KindNoSuchSnapshot, err))
		assert.True(t, stderrors.Is(err, snapshot.ErrNoSuchSnapshot))

		_, err = store.History(ctx, "missing")
		assert.True(t, errors.Is(errors.KindNoSuchProject, err))
	})

	t.Run("append advances latest", func(t *testing.T) {
		store := newStore(t)
		project, first, err := store.CreateProject(ctx, 2, 2)
		require.NoError(t, err)

		id, err := store.AppendSnapshot(ctx, project.ID, first.ID, Paint(t, first, 3, red), "paint")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, id)

		latest, err := store.GetLatest(ctx, project.ID)
		require.NoError(t, err)
		assert.Equal(t, id, latest.ID)
		assert.Equal(t, first.ID, latest.Parent)
		assert.Equal(t, red, latest.Grid.Cells[3])
		assert.Equal(t, "paint", latest.Message)

		// the first snapshot is unchanged
		again, err := store.GetByID(ctx, project.ID, first.ID)
		require.NoError(t, err)
		assert.Equal(t, grid.White, again.Grid.Cells[3])
	})

	t.Run("stale append fails", func(t *testing.T) {
		store := newStore(t)
		project, first, err := store.CreateProject(ctx, 2, 2)
		require.NoError(t, err)
		_, err = store.AppendSnapshot(ctx, project.ID, first.ID, Paint(t, first, 0, red), "a")
		require.NoError(t, err)

		_, err = store.AppendSnapshot(ctx, project.ID, first.ID, Paint(t, first, 1, red), "b")
		assert.True(t, errors.Is(errors.KindConcurrentModification, err))
		assert.True(t, stderrors.Is(err, snapshot.ErrConcurrentModification))
		assert.True(t, errors.IsRetryable(err))

		history, err := store.History(ctx, project.ID)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("append validates grid", func(t *testing.T) {
		store := newStore(t)
		project, first, err := store.CreateProject(ctx, 2, 2)
		require.NoError(t, err)
		wrong, err := grid.New(3, 3, grid.White)
		require.NoError(t, err)
		_, err = store.AppendSnapshot(ctx, project.ID, first.ID, wrong, "m")
		assert.True(t, errors.Is(errors.KindInvalid, err))
		_, err = store.AppendSnapshot(ctx, project.ID, first.ID, first.Grid, "")
		assert.True(t, errors.Is(errors.KindInvalid, err))
	})

	t.Run("diff cells", func(t *testing.T) {
		store := newStore(t)
		project, first, err := store.CreateProject(ctx, 2, 2)
		require.NoError(t, err)
		g := Paint(t, first, 2, red)
		g.Cells[0] = red
		id, err := store.AppendSnapshot(ctx, project.ID, first.ID, g, "two")
		require.NoError(t, err)

		cells, err := store.DiffCells(ctx, project.ID, first.ID, id)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2}, cells)

		cells, err = store.DiffCells(ctx, project.ID, id, id)
		require.NoError(t, err)
		assert.Empty(t, cells)

		_, err = store.DiffCells(ctx, project.ID, first.ID, "missing")
		assert.True(t, errors.Is(errors.KindNoSuchSnapshot, err))
	})

	t.Run("history newest first", func(t *testing.T) {
		store := newStore(t)
		project, first, err := store.CreateProject(ctx, 1, 1)
		require.NoError(t, err)
		second, err := store.AppendSnapshot(ctx, project.ID, first.ID, Paint(t, first, 0, red), "second")
		require.NoError(t, err)

		history, err := store.History(ctx, project.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, second, history[0].ID)
		assert.Equal(t, "second", history[0].Message)
		assert.Equal(t, first.ID, history[1].ID)
		assert.Equal(t, snapshot.InitialMessage, history[1].Message)
	})

	t.Run("racing appends", func(t *testing.T) {
		store := newStore(t)
		project, first, err := store.CreateProject(ctx, 4, 4)
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.AppendSnapshot(ctx, project.ID, first.ID, Paint(t, first, i, red), "race")
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(errors.KindConcurrentModification, err), "got %v", err)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)
	})
}

