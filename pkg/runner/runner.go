// Package runner provides an embeddable API for running campaign workflows
// via DBOS, for host applications that want processing in-process instead of
// calling the worker's HTTP API.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/app"
	"github.com/adcraft/ad-pipeline/internal/config"
	"github.com/adcraft/ad-pipeline/internal/dbosruntime"
	"github.com/adcraft/ad-pipeline/internal/workflows"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the pipeline runner.
type Config struct {
	Settings *config.Settings
	Logger   zerolog.Logger

	// AppName identifies this application in DBOS. Defaults to
	// "ad-pipeline".
	AppName string

	// ApplicationVersion optionally overrides the binary hash for version
	// matching.
	ApplicationVersion string
}

// Runner runs campaign workflows durably via DBOS.
type Runner struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// New creates and launches a pipeline runner.
func New(cfg Config) (*Runner, error) {
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
		Concurrency:        cfg.Settings.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	workflowRunner := workflows.NewWorkflowRunner(runtime)

	stack, err := app.Build(cfg.Settings, cfg.Logger)
	if err != nil {
		return nil, err
	}

	campaign := workflows.NewCampaignWorkflow(stack.Orchestrator, nil, cfg.Logger)
	workflowRunner.Register(pipeline.JobCampaign, campaign)

	// Launch must come after workflow registration.
	if err := runtime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Runner{
		runtime: runtime,
		runner:  workflowRunner,
	}, nil
}

// RunCampaign enqueues campaign processing for the given brief file and
// returns the run ID.
func (r *Runner) RunCampaign(ctx context.Context, briefPath string) (string, error) {
	return r.runner.RunAsync(ctx, pipeline.ProcessRequest{
		BriefPath: briefPath,
		Job:       pipeline.JobCampaign,
	})
}

// Status returns the status of a run.
func (r *Runner) Status(ctx context.Context, runID string) (*dbosruntime.RunStatus, error) {
	return r.runtime.GetRunStatus(ctx, runID)
}

// Shutdown gracefully shuts down the runner.
func (r *Runner) Shutdown(timeout time.Duration) {
	if r.runtime != nil {
		r.runtime.Shutdown(timeout)
	}
}
