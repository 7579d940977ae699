package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

func zapNop() *zap.Logger { return zap.NewNop() }

func sampleMappings() []retrieval.TaskMapping {
	return []retrieval.TaskMapping{
		{JobID: "SL1", TaskType: "a", TaskID: "t1", Status: retrieval.StatusCompleted, FileCount: 1, HasParseFile: true},
		{JobID: "SL2", TaskType: "a", TaskID: "t2", Status: retrieval.StatusFailed},
		{JobID: "SL3", TaskType: "b", TaskID: "t3", Status: retrieval.StatusCompleted, FileCount: 2},
	}
}

func TestListMappingsPaginates(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRetriever{mappings: sampleMappings()}, Options{}, nil)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/mappings?limit=2&offset=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Mappings []retrieval.TaskMapping `json:"mappings"`
		Total    int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Mappings, 2)
	assert.Equal(t, "SL2", body.Mappings[0].JobID)
	assert.Equal(t, "SL3", body.Mappings[1].JobID)

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/v1/mappings?offset=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Mappings)
}

func TestListMappingsRejectsBadParams(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRetriever{}, Options{}, nil)
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/mappings?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListMappingsStoreError(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRetriever{mapErr: errors.New("db down")}, Options{}, nil)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/mappings", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetMapping(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRetriever{mappings: sampleMappings()}, Options{}, nil)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/mappings/SL3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var m retrieval.TaskMapping
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "t3", m.TaskID)
	assert.Equal(t, 2, m.FileCount)

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/v1/mappings/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
