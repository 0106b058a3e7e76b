// Package workflows runs campaign processing as durable DBOS workflows.
// Workflows are registered by job type; the runner dispatches incoming
// requests either synchronously or via the DBOS queue.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/adcraft/ad-pipeline/internal/dbosruntime"
	"github.com/adcraft/ad-pipeline/internal/orchestrator"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// WorkflowContext contains context for workflow execution.
type WorkflowContext struct {
	Ctx     context.Context
	Request pipeline.ProcessRequest
	RunID   string
}

// WorkflowResult contains the result of workflow execution. Error is a plain
// string so the result round-trips through DBOS checkpointing.
type WorkflowResult struct {
	Success bool                          `json:"success"`
	Error   string                        `json:"error,omitempty"`
	Summary *orchestrator.CampaignSummary `json:"summary,omitempty"`
	Outputs map[string]interface{}        `json:"outputs,omitempty"`
}

// Workflow defines the interface for processing workflows.
type Workflow interface {
	// Execute runs the workflow.
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)

	// Name returns the workflow name.
	Name() string
}

// WorkflowRunner executes workflows.
type WorkflowRunner struct {
	workflows   map[string]Workflow
	dbosRuntime *dbosruntime.Runtime
}

// NewWorkflowRunner creates a workflow runner. When a DBOS runtime is given,
// the runner's dispatch function is registered as a durable workflow.
func NewWorkflowRunner(dbosRuntime *dbosruntime.Runtime) *WorkflowRunner {
	runner := &WorkflowRunner{
		workflows:   make(map[string]Workflow),
		dbosRuntime: dbosRuntime,
	}

	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
	}

	return runner
}

// Register registers a workflow for a job type.
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Run executes a workflow synchronously.
func (r *WorkflowRunner) Run(wctx *WorkflowContext) (*WorkflowResult, error) {
	workflow, ok := r.workflows[wctx.Request.Job]
	if !ok {
		return &WorkflowResult{
			Success: false,
			Error:   ErrWorkflowNotFound.Error(),
		}, ErrWorkflowNotFound
	}

	return workflow.Execute(wctx)
}

// RunAsync enqueues a workflow for durable execution via DBOS and returns
// the run ID.
func (r *WorkflowRunner) RunAsync(ctx context.Context, req pipeline.ProcessRequest) (string, error) {
	if r.dbosRuntime == nil {
		return "", errors.New("DBOS runtime not initialized")
	}

	// Workflow ID keyed on job, brief, and time for exactly-once semantics.
	workflowID := fmt.Sprintf("%s-%s-%d", req.Job, briefSlug(req.BriefPath), time.Now().UnixNano())

	handle, err := dbos.RunWorkflow[pipeline.ProcessRequest, *WorkflowResult](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueName()),
	)
	if err != nil {
		return "", err
	}

	return handle.GetWorkflowID(), nil
}

// executeWorkflowDBOS is the DBOS workflow function wrapping registered
// workflows. DBOS checkpoints the result automatically.
func (r *WorkflowRunner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req pipeline.ProcessRequest) (*WorkflowResult, error) {
	workflow, ok := r.workflows[req.Job]
	if !ok {
		return &WorkflowResult{
			Success: false,
			Error:   ErrWorkflowNotFound.Error(),
		}, ErrWorkflowNotFound
	}

	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return &WorkflowResult{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	wctx := &WorkflowContext{
		Ctx:     dbosCtx,
		Request: req,
		RunID:   workflowID,
	}

	return workflow.Execute(wctx)
}
