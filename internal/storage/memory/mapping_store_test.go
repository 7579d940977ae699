package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

func TestMappingStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMappingStore()
	ctx := context.Background()

	require.Error(t, store.RecordMapping(ctx, retrieval.TaskMapping{}))

	first := retrieval.TaskMapping{
		JobID:        "SL42",
		TaskType:     "AmazonReviewStarJob",
		TaskID:       "123456789012345678",
		RelativePath: "./AmazonReviewStarJob/123456789012345678/",
		Status:       retrieval.StatusFailed,
	}
	require.NoError(t, store.RecordMapping(ctx, first))
	got, err := store.GetMapping(ctx, "SL42")
	require.NoError(t, err)
	require.Equal(t, retrieval.StatusFailed, got.Status)
	require.False(t, got.UpdatedAt.IsZero())

	first.Status = retrieval.StatusCompleted
	first.Method = retrieval.MethodBroadSearch
	require.NoError(t, store.RecordMapping(ctx, first))
	require.NoError(t, store.RecordMapping(ctx, retrieval.TaskMapping{JobID: "A1", Status: retrieval.StatusCompleted}))

	list, err := store.ListMappings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "A1", list[0].JobID)
	require.Equal(t, retrieval.StatusCompleted, list[1].Status)
	require.Equal(t, retrieval.MethodBroadSearch, list[1].Method)

	_, err = store.GetMapping(ctx, "missing")
	require.ErrorIs(t, err, retrieval.ErrMappingNotFound)
	require.NoError(t, store.Close())
}
