package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

func TestFetchDirectSavesCanonicalFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	link := "https://storage.googleapis.com/parse-bucket/parse/T/1/result.json?X-Goog-Signature=abc"
	h.downloader.responses[link] = retrieval.Download{StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)}

	out := h.fetcher.FetchDirect(context.Background(), testIdentity, []string{link}, true)
	require.True(t, out.Success, out.Err)
	require.Equal(t, retrieval.MethodDirectLink, out.Method)
	require.Len(t, out.Files, 1)
	require.Equal(t, "result.json", out.Files[0].OriginalName)
	require.Equal(t, retrieval.CanonicalParseName, out.Files[0].SavedName)
	require.Equal(t, `{"ok":true}`, h.read(t, retrieval.CanonicalParseName))
}

func TestFetchDirectDecompressesGzip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	byExt := "https://h/parse/T/1/a.json.gz"
	byHeader := "https://h/parse/T/1/b"
	h.downloader.responses[byExt] = retrieval.Download{StatusCode: 200, Body: gzipBytes(t, `{"a":1}`)}
	h.downloader.responses[byHeader] = retrieval.Download{
		StatusCode: 200,
		Headers:    http.Header{"Content-Encoding": {"gzip"}},
		Body:       gzipBytes(t, `{"b":2}`),
	}

	out := h.fetcher.FetchDirect(context.Background(), testIdentity, []string{byExt, byHeader}, true)
	require.True(t, out.Success)
	require.Len(t, out.Files, 2)
	require.Equal(t, "a.json.gz", out.Files[0].OriginalName)
	require.Equal(t, "b", out.Files[1].OriginalName)
	// Last success wins on disk.
	require.Equal(t, `{"b":2}`, h.read(t, retrieval.CanonicalParseName))
}

func TestFetchDirectKeepsRawBytesWhenDecompressDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	link := "https://h/parse/T/1/a.json.gz"
	body := gzipBytes(t, `{"a":1}`)
	h.downloader.responses[link] = retrieval.Download{StatusCode: 200, Body: body}

	out := h.fetcher.FetchDirect(context.Background(), testIdentity, []string{link}, false)
	require.True(t, out.Success)
	require.Equal(t, string(body), h.read(t, retrieval.CanonicalParseName))
}

func TestFetchDirectKeepsRawBytesOnCorruptGzip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	link := "https://h/parse/T/1/a.json.gz"
	h.downloader.responses[link] = retrieval.Download{StatusCode: 200, Body: []byte("not gzip")}

	out := h.fetcher.FetchDirect(context.Background(), testIdentity, []string{link}, true)
	require.True(t, out.Success)
	require.Equal(t, "not gzip", h.read(t, retrieval.CanonicalParseName))
}

func TestFetchDirectSkipsFailedLinks(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	bad := "https://h/expired.json"
	broken := "https://h/broken.json"
	good := "https://h/good.json"
	h.downloader.responses[bad] = retrieval.Download{StatusCode: http.StatusForbidden}
	h.downloader.errs[broken] = errors.New("connection reset")
	h.downloader.responses[good] = retrieval.Download{StatusCode: 200, Body: []byte("{}")}

	out := h.fetcher.FetchDirect(context.Background(), testIdentity, []string{bad, broken, good}, true)
	require.True(t, out.Success)
	require.Len(t, out.Files, 1)
	require.Equal(t, []string{bad, broken, good}, h.downloader.calls)
}

func TestFetchDirectAllFail(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out := h.fetcher.FetchDirect(context.Background(), testIdentity,
		[]string{"https://h/a.json?sig=secret", "ftp://h/b.json"}, true)
	require.False(t, out.Success)
	require.Contains(t, out.Err, "no files downloaded")
	require.Contains(t, out.Err, "unexpected status 404")
	require.Contains(t, out.Err, "unsupported scheme")
	require.NotContains(t, out.Err, "secret")
	require.NotEmpty(t, out.SavePath)
	// The ftp link never reaches the downloader.
	require.Len(t, h.downloader.calls, 1)
}

func TestFetchDirectNoLinks(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out := h.fetcher.FetchDirect(context.Background(), testIdentity, nil, true)
	require.False(t, out.Success)
	require.Equal(t, retrieval.ErrNoLinks.Error(), out.Err)
}
