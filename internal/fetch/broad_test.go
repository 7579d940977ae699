package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

const broadPrefix = "parse/AmazonReviewStarJob/123456789012345678/"

func TestFetchBroadOrdersAndRenames(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.put(t, h.parse, broadPrefix+"z.json", []byte(`{"z":1}`))
	h.put(t, h.parse, broadPrefix+"a.json.gz", gzipBytes(t, `{"a":1}`))
	h.put(t, h.parse, broadPrefix+"notes.txt", []byte(`{"n":1}`))
	h.put(t, h.parse, broadPrefix+"blob.bin", []byte("plain"))
	// Different task id sharing a string prefix must not be listed.
	h.put(t, h.parse, "parse/AmazonReviewStarJob/1234567890123456789/other.json", []byte("{}"))

	out := h.fetcher.FetchBroad(context.Background(), testIdentity, true)
	require.True(t, out.Success, out.Err)
	require.Equal(t, retrieval.MethodBroadSearch, out.Method)
	require.Len(t, out.Files, 4)

	names := make([]string, 0, len(out.Files))
	for _, f := range out.Files {
		names = append(names, f.OriginalName+"->"+f.SavedName)
	}
	require.Equal(t, []string{
		"z.json->parse_result.json",
		"a.json.gz->a.json",
		"blob.bin->blob.bin",
		"notes.txt->notes.json",
	}, names)
	require.Equal(t, `{"z":1}`, h.read(t, retrieval.CanonicalParseName))
	require.Equal(t, `{"a":1}`, h.read(t, "a.json"))
}

func TestFetchBroadKeepsGzipNameWithoutDecompress(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.put(t, h.parse, broadPrefix+"a.json.gz", gzipBytes(t, `{"a":1}`))
	h.put(t, h.parse, broadPrefix+"b.json.gz", gzipBytes(t, `{"b":1}`))

	out := h.fetcher.FetchBroad(context.Background(), testIdentity, false)
	require.True(t, out.Success)
	require.Equal(t, retrieval.CanonicalParseName, out.Files[0].SavedName)
	require.Equal(t, "b.json.gz", out.Files[1].SavedName)
}

func TestFetchBroadNeverOverwritesCanonical(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.put(t, h.parse, broadPrefix+"a.json", []byte(`{"first":true}`))
	h.put(t, h.parse, broadPrefix+"parse_result.json.gz", gzipBytes(t, `{"second":true}`))

	out := h.fetcher.FetchBroad(context.Background(), testIdentity, true)
	require.True(t, out.Success)
	require.Len(t, out.Files, 2)
	require.Equal(t, "parse_result.1.json", out.Files[1].SavedName)
	require.Equal(t, `{"first":true}`, h.read(t, retrieval.CanonicalParseName))
}

func TestFetchBroadEmptyPrefix(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out := h.fetcher.FetchBroad(context.Background(), testIdentity, true)
	require.False(t, out.Success)
	require.Contains(t, out.Err, "no files found at prefix "+broadPrefix)
}

func TestOrderObjectsTiers(t *testing.T) {
	t.Parallel()

	got := orderObjects([]retrieval.ObjectInfo{
		{Name: "c.txt"}, {Name: "b.json.gz"}, {Name: "b.json"}, {Name: "a.json.gz"}, {Name: "a.json"},
	})
	names := make([]string, 0, len(got))
	for _, o := range got {
		names = append(names, o.Name)
	}
	require.Equal(t, []string{"a.json", "b.json", "a.json.gz", "b.json.gz", "c.txt"}, names)
}
