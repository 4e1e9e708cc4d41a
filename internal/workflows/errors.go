package workflows

import "errors"

var (
	// ErrWorkflowNotFound is returned when no job is registered for a request
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepFailed is returned when a job ran but did not succeed
	ErrStepFailed = errors.New("workflow step failed")

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid workflow request")

	// ErrNoRuntime is returned for operations that need DBOS when none is configured
	ErrNoRuntime = errors.New("DBOS runtime not initialized")
)
