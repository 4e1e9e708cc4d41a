package workflows

import (
	"context"
	"fmt"

	"github.com/tendant/manual-asset-pipeline/internal/builder"
	"github.com/tendant/manual-asset-pipeline/internal/ledger"
	"github.com/tendant/manual-asset-pipeline/internal/manifest"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
)

// BuildRecorder stores finished builds
type BuildRecorder interface {
	Record(ctx context.Context, b ledger.Build) (int, error)
}

// BuildRunner runs one manifest build
type BuildRunner interface {
	Run(ctx context.Context) *builder.Summary
}

// ManifestBuildJob runs the manifest builder and records the outcome
type ManifestBuildJob struct {
	builder      BuildRunner
	recorder     BuildRecorder
	manifestPath string
}

// NewManifestBuildJob creates the build job. recorder may be nil.
func NewManifestBuildJob(b BuildRunner, recorder BuildRecorder, manifestPath string) *ManifestBuildJob {
	return &ManifestBuildJob{
		builder:      b,
		recorder:     recorder,
		manifestPath: manifestPath,
	}
}

// Name returns the job name
func (j *ManifestBuildJob) Name() string {
	return "ManifestBuildWorkflow"
}

// Execute runs a full build
func (j *ManifestBuildJob) Execute(jctx *JobContext) (*Result, error) {
	req := jctx.Request
	if req.ManifestPath != "" && req.ManifestPath != j.manifestPath {
		err := fmt.Errorf("%w: this worker builds %s, not %s", ErrInvalidRequest, j.manifestPath, req.ManifestPath)
		return &Result{Success: false, Error: err.Error()}, err
	}

	summary := j.builder.Run(jctx.Ctx)

	outputs := map[string]any{
		"build_id":  summary.RunID,
		"manifest":  j.manifestPath,
		"processed": summary.Processed,
		"variants":  summary.Variants,
		"errors":    len(summary.Errors),
	}
	if len(summary.Errors) > 0 {
		failed := make([]string, 0, len(summary.Errors))
		for _, e := range summary.Errors {
			failed = append(failed, e.Error())
		}
		outputs["failed_images"] = failed
	}

	if summary.Err != nil {
		err := fmt.Errorf("%w: %v", ErrStepFailed, summary.Err)
		return &Result{Success: false, Error: err.Error(), Outputs: outputs}, err
	}

	if j.recorder != nil {
		count, err := j.recorder.Record(jctx.Ctx, ledger.Build{
			ManifestPath: j.manifestPath,
			RunID:        summary.RunID,
			Processed:    summary.Processed,
			Errors:       len(summary.Errors),
			Variants:     summary.Variants,
		})
		if err != nil {
			// The manifest is already written; the ledger is bookkeeping only
			outputs["ledger_error"] = err.Error()
		} else {
			outputs["build_count"] = count
		}
	}

	if summary.Failed(req.FailOnError) {
		err := fmt.Errorf("%w: %d images failed", ErrStepFailed, len(summary.Errors))
		return &Result{Success: false, Error: err.Error(), Outputs: outputs}, err
	}

	return &Result{Success: true, Outputs: outputs}, nil
}

// VerifyJob audits a manifest for entries whose files are gone
type VerifyJob struct {
	store        storage.Reader
	manifestPath string
}

// NewVerifyJob creates the verify job. manifestPath is used when the request
// does not name one.
func NewVerifyJob(store storage.Reader, manifestPath string) *VerifyJob {
	return &VerifyJob{store: store, manifestPath: manifestPath}
}

// Name returns the job name
func (j *VerifyJob) Name() string {
	return "ManifestVerifyWorkflow"
}

// Execute fetches the manifest and checks every claimed variant
func (j *VerifyJob) Execute(jctx *JobContext) (*Result, error) {
	path := jctx.Request.ManifestPath
	if path == "" {
		path = j.manifestPath
	}

	m, err := manifest.Fetch(jctx.Ctx, j.store, path)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, err
	}

	report, err := manifest.Verify(jctx.Ctx, m, j.store)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, err
	}

	stale := make([]string, 0, len(report.Stale))
	for _, s := range report.Stale {
		stale = append(stale, s.Path)
	}

	return &Result{
		Success: report.OK(),
		Outputs: map[string]any{
			"manifest": path,
			"checked":  report.Checked,
			"stale":    stale,
		},
	}, nil
}
