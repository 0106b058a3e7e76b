package workflows

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/brief"
	"github.com/adcraft/ad-pipeline/internal/orchestrator"
)

// Processor runs a loaded campaign brief through the pipeline.
type Processor interface {
	ProcessCampaign(ctx context.Context, b *brief.Brief) (*orchestrator.CampaignSummary, error)
}

// BriefLoader loads a campaign brief from a path.
type BriefLoader func(path string) (*brief.Brief, error)

// CampaignWorkflow processes one campaign brief end to end.
type CampaignWorkflow struct {
	processor Processor
	load      BriefLoader
	logger    zerolog.Logger
}

// NewCampaignWorkflow creates a campaign processing workflow. When load is
// nil the default brief loader is used.
func NewCampaignWorkflow(processor Processor, load BriefLoader, logger zerolog.Logger) *CampaignWorkflow {
	if load == nil {
		load = brief.Load
	}
	return &CampaignWorkflow{
		processor: processor,
		load:      load,
		logger:    logger.With().Str("component", "campaign_workflow").Logger(),
	}
}

// Name returns the workflow name.
func (w *CampaignWorkflow) Name() string {
	return "CampaignWorkflow"
}

// Execute loads the brief and runs campaign processing. A campaign that
// completes with failed or skipped entries is still a successful workflow
// run; only fatal aborts and loader errors fail it.
func (w *CampaignWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	log := w.logger.With().Str("run_id", wctx.RunID).Str("brief", wctx.Request.BriefPath).Logger()

	if wctx.Request.BriefPath == "" {
		return &WorkflowResult{
			Success: false,
			Error:   ErrInvalidRequest.Error(),
		}, ErrInvalidRequest
	}

	b, err := w.load(wctx.Request.BriefPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load brief")
		return &WorkflowResult{
			Success: false,
			Error:   fmt.Sprintf("failed to load brief: %v", err),
		}, err
	}

	log.Info().Str("campaign", b.CampaignName).Msg("starting campaign workflow")

	summary, err := w.processor.ProcessCampaign(wctx.Ctx, b)
	if err != nil {
		res := &WorkflowResult{
			Success: false,
			Error:   err.Error(),
			Summary: summary,
		}
		log.Error().Err(err).Msg("campaign workflow failed")
		return res, err
	}

	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("campaign workflow completed")

	return &WorkflowResult{
		Success: true,
		Summary: summary,
		Outputs: map[string]interface{}{
			"campaign":  summary.Campaign,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
		},
	}, nil
}

// briefSlug derives a workflow ID component from a brief path.
func briefSlug(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
