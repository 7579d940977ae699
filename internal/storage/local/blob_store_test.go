// Package local_test tests the local filesystem object store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
	"github.com/JakeFAU/parse-artifact-retriever/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: tempDir, Bucket: "parse-bucket"})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.DirExists(t, filepath.Join(tempDir, "parse-bucket"))
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(tempFile, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: tempFile})
		assert.Error(t, err)
	})
}

func TestPutGetAndList(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir, Bucket: "parse-bucket"})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "parse/T/1/a.json", "application/json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(tempDir, "parse-bucket", "parse", "T", "1", "a.json"), uri)
	_, err = store.PutObject(ctx, "parse/T/1/b.json.gz", "", []byte("zz"))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "parse/T/2/c.json", "", []byte("{}"))
	require.NoError(t, err)

	data, err := store.GetObject(ctx, "parse/T/1/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	objs, err := store.ListObjects(ctx, "parse/T/1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "parse/T/1/a.json", objs[0].Name)
	assert.Equal(t, int64(7), objs[0].Size)
	assert.Equal(t, "parse/T/1/b.json.gz", objs[1].Name)

	empty, err := store.ListObjects(ctx, "parse/T/9/")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetMissingAndTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir(), Bucket: "b"})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "parse/T/1/none.json")
	assert.ErrorIs(t, err, retrieval.ErrObjectNotFound)

	_, err = store.GetObject(context.Background(), "../../etc/passwd")
	assert.ErrorContains(t, err, "path traversal")

	_, err = store.PutObject(context.Background(), "", "", []byte("x"))
	assert.Error(t, err)
}
