package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when no workflow exists for the given run ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is one row from the DBOS workflow status table.
type RunStatus struct {
	RunID     string
	Status    string
	Name      string
	CreatedAt int64
	UpdatedAt int64
	Output    sql.NullString
	Error     sql.NullString
}

// GetRunStatus reads the status of a workflow run from the DBOS status
// table. Output carries the serialized workflow result once the run is done.
func (r *Runtime) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	query := `
		SELECT workflow_uuid, status, name, created_at, updated_at, output, error
		FROM dbos.workflow_status
		WHERE workflow_uuid = $1
	`

	var st RunStatus
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&st.RunID,
		&st.Status,
		&st.Name,
		&st.CreatedAt,
		&st.UpdatedAt,
		&st.Output,
		&st.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run status: %w", err)
	}

	return &st, nil
}
