package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

func TestBuild(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/build", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req pipeline.BuildRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, pipeline.JobManifestBuild, req.Job)
		assert.True(t, req.FailOnError)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(pipeline.BuildResponse{RunID: "run-1", Status: pipeline.StatusQueued})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Build(context.Background(), pipeline.BuildRequest{FailOnError: true})
	require.NoError(t, err)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, pipeline.StatusQueued, resp.Status)
}

func TestStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/runs/run-9", r.URL.Path)
		http.Error(w, "Run not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Status(context.Background(), "run-9")
	assert.ErrorContains(t, err, "unexpected status 404: Run not found")
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/resolve", r.URL.Path)
		assert.Equal(t, "assets/images/logo.png", r.URL.Query().Get("path"))
		assert.Equal(t, "small", r.URL.Query().Get("size"))
		assert.Empty(t, r.URL.Query().Get("format"))
		json.NewEncoder(w).Encode(pipeline.ResolveResponse{Path: "assets/images/optimized/logo-small.webp", Source: "convention"})
	}))
	defer srv.Close()

	res, err := New(srv.URL+"/").Resolve(context.Background(), "assets/images/logo.png", "small", "")
	require.NoError(t, err)
	assert.Equal(t, "assets/images/optimized/logo-small.webp", res.Path)
	assert.Equal(t, "convention", res.Source)
}
