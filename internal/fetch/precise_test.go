package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

func TestFetchPreciseReadsOneObject(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := "parse/AmazonReviewStarJob/123456789012345678/out.json.gz"
	h.put(t, h.parse, key, gzipBytes(t, `{"rating":5}`))

	out := h.fetcher.FetchPrecise(context.Background(), key, testIdentity, true)
	require.True(t, out.Success, out.Err)
	require.Equal(t, retrieval.MethodPrecisePath, out.Method)
	require.Len(t, out.Files, 1)
	require.Equal(t, "out.json.gz", out.Files[0].OriginalName)
	require.Equal(t, retrieval.CanonicalParseName, out.Files[0].SavedName)
	require.Equal(t, `{"rating":5}`, h.read(t, retrieval.CanonicalParseName))
}

func TestFetchPreciseMissingObject(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out := h.fetcher.FetchPrecise(context.Background(), "parse/AmazonReviewStarJob/123456789012345678/none.json", testIdentity, true)
	require.False(t, out.Success)
	require.Contains(t, out.Err, retrieval.ErrObjectNotFound.Error())
	require.Equal(t, h.fetcher.SavePath(testIdentity), out.SavePath)
}

func TestFetchPreciseEmptyKey(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out := h.fetcher.FetchPrecise(context.Background(), "", testIdentity, true)
	require.False(t, out.Success)
}

func TestFetchPreciseRejectsKeysOutsideTask(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	foreign := "parse/AmazonReviewStarJob/999999999999999999/out.json"
	h.put(t, h.parse, foreign, []byte(`{"other":true}`))

	for _, key := range []string{
		foreign,
		"parse/OtherJob/123456789012345678/out.json",
		"parse/AmazonReviewStarJob/123456789012345678/../999999999999999999/out.json",
		"raw/AmazonReviewStarJob/123456789012345678/out.json",
		"/parse/AmazonReviewStarJob/123456789012345678/out.json",
	} {
		out := h.fetcher.FetchPrecise(context.Background(), key, testIdentity, true)
		require.False(t, out.Success, key)
		require.Contains(t, out.Err, "outside", key)
		require.Empty(t, out.Files, key)
	}
	_, err := os.Stat(filepath.Join(h.fetcher.SavePath(testIdentity), retrieval.CanonicalParseName))
	require.True(t, os.IsNotExist(err))
}

