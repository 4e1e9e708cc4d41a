package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/manual-asset-pipeline/internal/dbosruntime"
	"github.com/tendant/manual-asset-pipeline/internal/workflows"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

type fakeRunner struct {
	enqueued []pipeline.BuildRequest
	result   *workflows.Result
	runErr   error
	asyncErr error
	statuses map[string]*workflows.Status
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.BuildRequest) (*workflows.Result, error) {
	return f.result, f.runErr
}

func (f *fakeRunner) RunAsync(ctx context.Context, req pipeline.BuildRequest) (string, error) {
	if f.asyncErr != nil {
		return "", f.asyncErr
	}
	f.enqueued = append(f.enqueued, req)
	return req.Job + "-1", nil
}

func (f *fakeRunner) GetStatus(ctx context.Context, runID string) (*workflows.Status, error) {
	if st, ok := f.statuses[runID]; ok {
		return st, nil
	}
	return nil, dbosruntime.ErrWorkflowNotFound
}

func TestHandleBuildEnqueues(t *testing.T) {
	runner := &fakeRunner{}
	h := NewAsyncHandler(runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/build", strings.NewReader(`{"fail_on_error":true}`))
	rec := httptest.NewRecorder()
	h.HandleBuild(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp pipeline.BuildResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "manifest_build-1", resp.RunID)
	assert.Equal(t, pipeline.StatusQueued, resp.Status)

	require.Len(t, runner.enqueued, 1)
	assert.Equal(t, pipeline.JobManifestBuild, runner.enqueued[0].Job)
	assert.True(t, runner.enqueued[0].FailOnError)
}

func TestHandleVerifyEmptyBody(t *testing.T) {
	runner := &fakeRunner{}
	h := NewAsyncHandler(runner, nil)

	rec := httptest.NewRecorder()
	h.HandleVerify(rec, httptest.NewRequest(http.MethodPost, "/v1/verify", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, runner.enqueued, 1)
	assert.Equal(t, pipeline.JobManifestVerify, runner.enqueued[0].Job)
}

func TestHandleBuildRejects(t *testing.T) {
	h := NewAsyncHandler(&fakeRunner{}, nil)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"other job", http.MethodPost, `{"job":"manifest_verify"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleBuild(rec, httptest.NewRequest(tt.method, "/v1/build", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleBuildEnqueueFailure(t *testing.T) {
	h := NewAsyncHandler(&fakeRunner{asyncErr: errors.New("queue down")}, nil)

	rec := httptest.NewRecorder()
	h.HandleBuild(rec, httptest.NewRequest(http.MethodPost, "/v1/build", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleBuildWait(t *testing.T) {
	runner := &fakeRunner{result: &workflows.Result{
		Success: true,
		Outputs: map[string]any{"build_id": "b-1", "variants": 12},
	}}
	h := NewAsyncHandler(runner, nil)

	rec := httptest.NewRecorder()
	h.HandleBuild(rec, httptest.NewRequest(http.MethodPost, "/v1/build?wait=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp pipeline.BuildResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "b-1", resp.RunID)
	assert.Equal(t, pipeline.StatusSucceeded, resp.Status)
	assert.Equal(t, 12.0, resp.Outputs["variants"])
	assert.Empty(t, runner.enqueued)
}

func TestHandleBuildWaitFailure(t *testing.T) {
	runner := &fakeRunner{
		result: &workflows.Result{Success: false, Error: "2 images failed"},
		runErr: workflows.ErrStepFailed,
	}
	h := NewAsyncHandler(runner, nil)

	rec := httptest.NewRecorder()
	h.HandleBuild(rec, httptest.NewRequest(http.MethodPost, "/v1/build?wait=1", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "2 images failed")
}

func TestHandleStatus(t *testing.T) {
	runner := &fakeRunner{statuses: map[string]*workflows.Status{
		"run-1": {RunID: "run-1", State: "succeeded"},
	}}
	h := NewAsyncHandler(runner, nil)

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st workflows.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "succeeded", st.State)

	rec = httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
