package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-ci/gantry/pkg/domain"
)

// RunStoreContract runs a suite of tests to verify that a RunStore
// implementation adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-test-run-" + time.Now().Format("20060102150405")

	result := func(id string) *domain.RunResult {
		return &domain.RunResult{
			ID:       id,
			Pipeline: "contract",
			Event:    domain.Event{Type: "push", Ref: "refs/heads/main"},
			Status:   domain.RunSucceeded,
			Jobs: []domain.JobResult{
				{JobID: "python-version=3.8", Status: domain.JobSucceeded},
			},
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, result(runID))
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, runID, loaded.ID)
		assert.Equal(t, domain.RunSucceeded, loaded.Status)
		require.Len(t, loaded.Jobs, 1)
		assert.Equal(t, "python-version=3.8", loaded.Jobs[0].JobID)
	})

	t.Run("Load Returns a Copy", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, result(runID)))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		loaded.Jobs[0].Status = domain.JobFailed
		loaded.Jobs[0].JobID = "mutated"

		reloaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobSucceeded, reloaded.Jobs[0].Status,
			"mutating a loaded result must not reach the stored record")
		assert.Equal(t, "python-version=3.8", reloaded.Jobs[0].JobID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, result(runID))
		require.NoError(t, err)

		err = store.Delete(ctx, runID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, result(id1))
		_ = store.Save(ctx, result(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
