package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/dbosruntime"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// JobContext contains context for job execution
type JobContext struct {
	Ctx     context.Context
	Request pipeline.BuildRequest
	RunID   string
}

// Result is the outcome of a job. It is stored by DBOS, so it holds only
// plain values.
type Result struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

// Job is one kind of work the runner can execute
type Job interface {
	// Execute runs the job
	Execute(jctx *JobContext) (*Result, error)

	// Name returns the job name
	Name() string
}

// StatusSource looks up persisted workflow state
type StatusSource interface {
	GetWorkflowStatus(ctx context.Context, workflowUUID string) (*dbosruntime.WorkflowStatusInfo, error)
}

// Runner executes jobs inline or through the DBOS queue
type Runner struct {
	jobs     map[string]Job
	runtime  *dbosruntime.Runtime
	statuses StatusSource
	logger   *zap.Logger
}

// NewRunner creates a runner. With a nil runtime only Run is available.
func NewRunner(rt *dbosruntime.Runtime, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		jobs:    make(map[string]Job),
		runtime: rt,
		logger:  logger,
	}

	// Register the DBOS workflow function
	if rt != nil {
		r.statuses = rt
		dbos.RegisterWorkflow(rt.Context(), r.executeWorkflowDBOS)
	}

	return r
}

// Register registers a job under its request name
func (r *Runner) Register(job string, j Job) {
	r.jobs[job] = j
}

// Run executes a job synchronously in the calling goroutine
func (r *Runner) Run(ctx context.Context, req pipeline.BuildRequest) (*Result, error) {
	runID := newRunID(req.Job)
	return r.execute(&JobContext{Ctx: ctx, Request: req, RunID: runID})
}

// RunAsync enqueues a job on the DBOS build queue and returns its run ID
func (r *Runner) RunAsync(ctx context.Context, req pipeline.BuildRequest) (string, error) {
	if r.runtime == nil {
		return "", ErrNoRuntime
	}
	if _, ok := r.jobs[req.Job]; !ok {
		return "", fmt.Errorf("%w: %q", ErrWorkflowNotFound, req.Job)
	}

	handle, err := dbos.RunWorkflow[pipeline.BuildRequest, *Result](
		r.runtime.Context(),
		r.executeWorkflowDBOS,
		req,
		dbos.WithWorkflowID(newRunID(req.Job)),
		dbos.WithQueue(r.runtime.QueueName()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", req.Job, err)
	}

	r.logger.Info("job enqueued",
		zap.String("job", req.Job),
		zap.String("run_id", handle.GetWorkflowID()))
	return handle.GetWorkflowID(), nil
}

// executeWorkflowDBOS is the DBOS workflow function wrapping registered jobs
func (r *Runner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req pipeline.BuildRequest) (*Result, error) {
	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, err
	}

	// DBOSContext implements context.Context
	return r.execute(&JobContext{Ctx: dbosCtx, Request: req, RunID: workflowID})
}

func (r *Runner) execute(jctx *JobContext) (*Result, error) {
	job, ok := r.jobs[jctx.Request.Job]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrWorkflowNotFound, jctx.Request.Job)
		return &Result{Success: false, Error: err.Error()}, err
	}

	logger := r.logger.With(zap.String("run_id", jctx.RunID), zap.String("job", job.Name()))
	logger.Info("job started")

	start := time.Now()
	result, err := job.Execute(jctx)
	if err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return result, err
	}

	logger.Info("job finished", zap.Bool("success", result.Success), zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Status is the externally visible state of a run
type Status = pipeline.RunStatus

// GetStatus reads the state of an async run
func (r *Runner) GetStatus(ctx context.Context, runID string) (*Status, error) {
	if r.statuses == nil {
		return nil, ErrNoRuntime
	}

	info, err := r.statuses.GetWorkflowStatus(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &Status{
		RunID:     info.WorkflowUUID,
		Name:      info.Name,
		State:     stateFromDBOS(info.Status),
		Error:     info.Error,
		CreatedAt: time.UnixMilli(info.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(info.UpdatedAt).UTC(),
	}, nil
}

func stateFromDBOS(status string) string {
	switch strings.ToUpper(status) {
	case "ENQUEUED":
		return "pending"
	case "PENDING":
		return "running"
	case "SUCCESS":
		return "succeeded"
	case "CANCELLED":
		return "cancelled"
	case "ERROR", "MAX_RECOVERY_ATTEMPTS_EXCEEDED", "RETRIES_EXCEEDED":
		return "failed"
	default:
		return strings.ToLower(status)
	}
}

func newRunID(job string) string {
	return job + "-" + uuid.NewString()
}

// IsNotFound reports whether err means the run does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, dbosruntime.ErrWorkflowNotFound)
}
