package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrWorkflowNotFound is returned when no workflow has the requested ID
var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowStatusInfo is a row of the DBOS workflow status table
type WorkflowStatusInfo struct {
	WorkflowUUID string
	Status       string // PENDING, ENQUEUED, SUCCESS, ERROR, CANCELLED, ...
	Name         string
	Output       string
	Error        string
	CreatedAt    int64 // unix millis
	UpdatedAt    int64
}

// GetWorkflowStatus reads the status of a workflow from the DBOS system tables
func (r *Runtime) GetWorkflowStatus(ctx context.Context, workflowUUID string) (*WorkflowStatusInfo, error) {
	query := `
		SELECT workflow_uuid, status, name, output, error, created_at, updated_at
		FROM dbos.workflow_status
		WHERE workflow_uuid = $1
	`

	var (
		info          WorkflowStatusInfo
		output, errCl sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, workflowUUID).Scan(
		&info.WorkflowUUID,
		&info.Status,
		&info.Name,
		&output,
		&errCl,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowUUID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow status: %w", err)
	}

	info.Output = output.String
	info.Error = errCl.String
	return &info, nil
}
