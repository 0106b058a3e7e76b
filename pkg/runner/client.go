package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/adcraft/ad-pipeline/internal/dbosruntime"
	"github.com/adcraft/ad-pipeline/internal/workflows"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// Client enqueues campaign workflows without executing them. Workers must be
// running separately to pick up the enqueued work.
type Client struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// NewClient creates an enqueue-only client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	appName := cfg.AppName
	if appName == "" {
		appName = "ad-pipeline"
	}

	runtime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        cfg.Settings.DatabaseURL,
		AppName:            appName,
		QueueName:          cfg.Settings.QueueName,
		Concurrency:        0,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	workflowRunner := workflows.NewWorkflowRunner(runtime)

	if err := runtime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Client{
		runtime: runtime,
		runner:  workflowRunner,
	}, nil
}

// RunCampaign enqueues campaign processing for a brief file.
func (c *Client) RunCampaign(ctx context.Context, briefPath string) (string, error) {
	return c.runner.RunAsync(ctx, pipeline.ProcessRequest{
		BriefPath: briefPath,
		Job:       pipeline.JobCampaign,
	})
}

// Status returns the status of a run.
func (c *Client) Status(ctx context.Context, runID string) (*dbosruntime.RunStatus, error) {
	return c.runtime.GetRunStatus(ctx, runID)
}

// Shutdown gracefully shuts down the client.
func (c *Client) Shutdown(timeout time.Duration) {
	if c.runtime != nil {
		c.runtime.Shutdown(timeout)
	}
}
