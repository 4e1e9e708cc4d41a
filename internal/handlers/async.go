package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/workflows"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// JobRunner runs manifest jobs
type JobRunner interface {
	Run(ctx context.Context, req pipeline.BuildRequest) (*workflows.Result, error)
	RunAsync(ctx context.Context, req pipeline.BuildRequest) (string, error)
	GetStatus(ctx context.Context, runID string) (*workflows.Status, error)
}

// AsyncHandler handles build and verify requests
type AsyncHandler struct {
	runner JobRunner
	logger *zap.Logger
}

// NewAsyncHandler creates a new async handler
func NewAsyncHandler(runner JobRunner, logger *zap.Logger) *AsyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleBuild handles POST /v1/build
func (h *AsyncHandler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	h.handleJob(w, r, pipeline.JobManifestBuild)
}

// HandleVerify handles POST /v1/verify
func (h *AsyncHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.handleJob(w, r, pipeline.JobManifestVerify)
}

// handleJob enqueues job and returns 202 with the run ID. With ?wait=true the
// job runs inline and the response carries its result.
func (h *AsyncHandler) handleJob(w http.ResponseWriter, r *http.Request, job string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// An empty body is a request with defaults
	var req pipeline.BuildRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
			return
		}
	}
	if req.Job != "" && req.Job != job {
		http.Error(w, fmt.Sprintf("job must be %s", job), http.StatusBadRequest)
		return
	}
	req.Job = job

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		h.runInline(w, r, req)
		return
	}

	runID, err := h.runner.RunAsync(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to enqueue job", zap.String("job", job), zap.Error(err))
		http.Error(w, fmt.Sprintf("Failed to enqueue job: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Info("job enqueued", zap.String("job", job), zap.String("run_id", runID))
	writeJSON(w, http.StatusAccepted, pipeline.BuildResponse{
		RunID:  runID,
		Status: pipeline.StatusQueued,
	})
}

func (h *AsyncHandler) runInline(w http.ResponseWriter, r *http.Request, req pipeline.BuildRequest) {
	result, err := h.runner.Run(r.Context(), req)
	if errors.Is(err, workflows.ErrInvalidRequest) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if result == nil {
		http.Error(w, fmt.Sprintf("Job failed: %v", err), http.StatusInternalServerError)
		return
	}

	resp := pipeline.BuildResponse{
		Status:  pipeline.StatusSucceeded,
		Error:   result.Error,
		Outputs: result.Outputs,
	}
	if id, ok := result.Outputs["build_id"].(string); ok {
		resp.RunID = id
	}

	code := http.StatusOK
	if err != nil || !result.Success {
		resp.Status = pipeline.StatusFailed
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, resp)
}

// HandleStatus handles GET /v1/runs/{runID}
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	status, err := h.runner.GetStatus(r.Context(), runID)
	if workflows.IsNotFound(err) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get run status", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, "Failed to get run status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
