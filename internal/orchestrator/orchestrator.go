// Package orchestrator drives a campaign brief through asset preparation,
// per-product content generation, and per-template compositing. Failures are
// contained at three granularities: fatal conditions abort the campaign,
// product-level problems skip one product, and editing failures skip one
// product x template pair.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/adcraft/ad-pipeline/internal/brief"
	"github.com/adcraft/ad-pipeline/internal/imageprep"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// ErrInvalidBrief is returned when ProcessCampaign is handed a brief that
// fails structural validation. This is a contract violation, not a runtime
// failure: callers validate first.
var ErrInvalidBrief = errors.New("brief failed validation")

// AssetStore is the transient store the orchestrator stages assets through.
type AssetStore interface {
	CreateNamespace(ctx context.Context, name string) error
	Upload(ctx context.Context, namespace, localPath string) (pipeline.AssetHandle, error)
	Download(ctx context.Context, h pipeline.AssetHandle, destPath string) error
}

// ImageGenerator produces and edits product imagery.
type ImageGenerator interface {
	Generate(ctx context.Context, namespace, prompt string) (pipeline.AssetHandle, error)
	Crop(ctx context.Context, h pipeline.AssetHandle) (pipeline.AssetHandle, error)
	RemoveBackground(ctx context.Context, h pipeline.AssetHandle) (pipeline.AssetHandle, error)
}

// DocumentEditor composites copy and imagery into template documents.
type DocumentEditor interface {
	ReplaceText(ctx context.Context, doc pipeline.AssetHandle, layers map[string]string) (pipeline.AssetHandle, error)
	ReplaceEmbeddedImage(ctx context.Context, doc, image pipeline.AssetHandle) (pipeline.AssetHandle, error)
	Render(ctx context.Context, doc pipeline.AssetHandle) (pipeline.AssetHandle, error)
}

// ContentGenerator produces campaign copy and call-to-action text.
type ContentGenerator interface {
	CampaignMessage(ctx context.Context, req pipeline.CopyRequest) (string, error)
	CallToAction(ctx context.Context, req pipeline.CopyRequest) (string, error)
}

// Config holds orchestrator settings.
type Config struct {
	// OutputRoot is where rendition files land, one subdirectory per brief
	// file name.
	OutputRoot string

	Retry RetryConfig

	// MaxConcurrentProducts bounds the per-campaign product fan-out.
	MaxConcurrentProducts int

	// MaxImageDimension bounds local product images before upload.
	MaxImageDimension int
}

func (c *Config) withDefaults() {
	c.Retry.withDefaults()
	if c.MaxConcurrentProducts < 1 {
		c.MaxConcurrentProducts = 4
	}
	if c.MaxImageDimension < 1 {
		c.MaxImageDimension = imageprep.MaxDimension
	}
}

// Orchestrator coordinates the four remote clients for campaign processing.
type Orchestrator struct {
	cfg     Config
	store   AssetStore
	images  ImageGenerator
	editor  DocumentEditor
	content ContentGenerator
	logger  zerolog.Logger
}

// New creates an orchestrator. All four clients are required.
func New(cfg Config, store AssetStore, images ImageGenerator, editor DocumentEditor, content ContentGenerator, logger zerolog.Logger) *Orchestrator {
	cfg.withDefaults()
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		images:  images,
		editor:  editor,
		content: content,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
	}
}

// ValidateCampaign runs the structural checks only; it never touches the
// network or the remote store.
func (o *Orchestrator) ValidateCampaign(b *brief.Brief) *brief.ValidationReport {
	return b.Validate()
}

// ProcessCampaign walks the brief through the full pipeline and always
// returns a summary. The error return is non-nil only for fatal conditions
// (missing templates, missing template file IDs, unreachable store) or a
// contract violation; product- and pair-level failures are recorded in the
// summary and never propagate.
func (o *Orchestrator) ProcessCampaign(ctx context.Context, b *brief.Brief) (*CampaignSummary, error) {
	if report := b.Validate(); !report.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBrief, strings.Join(report.Errors, "; "))
	}

	log := o.logger.With().Str("campaign", b.CampaignName).Str("brief", b.FileName).Logger()
	summary := &CampaignSummary{Campaign: b.CampaignName, BriefFile: b.FileName}

	// Fatal template conditions are checked locally, before any remote
	// call: templates participate in every rendition, so a missing file or
	// file ID invalidates the whole matrix.
	if err := verifyTemplates(b); err != nil {
		summary.State = StateAborted
		summary.AbortReason = err.Error()
		log.Error().Err(err).Msg("campaign aborted")
		return summary, err
	}
	summary.State = StateValidated

	// A campaign-level abort cancels any in-flight work for this campaign.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	abort := func(stage string, err error) (*CampaignSummary, error) {
		cancel()
		summary.State = StateAborted
		summary.AbortReason = fmt.Sprintf("%s: %v", stage, err)
		log.Error().Err(err).Str("stage", stage).Msg("campaign aborted")
		return summary, fmt.Errorf("%s: %w", stage, err)
	}

	if err := retryDo(ctx, o.cfg.Retry, log, "create namespace", func(ctx context.Context) error {
		return o.store.CreateNamespace(ctx, b.FileName)
	}); err != nil {
		return abort("namespace setup", err)
	}

	templateHandles := make(map[string]pipeline.AssetHandle, len(b.Templates))
	for _, t := range b.Templates {
		t := t
		h, err := withRetry(ctx, o.cfg.Retry, log, "upload template "+t.Filename, func(ctx context.Context) (pipeline.AssetHandle, error) {
			return o.store.Upload(ctx, b.FileName, b.TemplatePath(t))
		})
		if err != nil {
			return abort("template staging", err)
		}
		templateHandles[t.FileID] = h
	}
	summary.State = StateTemplatesStaged
	log.Info().Int("templates", len(b.Templates)).Msg("templates staged")

	summary.State = StateProcessing
	products := make([]ProductResult, len(b.Products))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrentProducts)
	for i := range b.Products {
		i := i
		g.Go(func() error {
			products[i] = o.processProduct(ctx, log, b, b.Products[i], templateHandles)
			return nil
		})
	}
	// Product failures never abort the campaign; goroutines only record.
	_ = g.Wait()

	summary.Products = products
	summary.State = StateCompleted
	summary.tally()

	if summary.Succeeded > 0 {
		log.Info().
			Int("succeeded", summary.Succeeded).
			Int("failed", summary.Failed).
			Int("skipped_products", summary.SkippedProducts).
			Msg("campaign completed")
	} else {
		log.Warn().
			Int("failed", summary.Failed).
			Int("skipped_products", summary.SkippedProducts).
			Msg("campaign completed with no renditions")
	}

	return summary, nil
}

// verifyTemplates enforces the fatal template invariants: every template
// file must exist locally and carry a file ID before processing begins.
func verifyTemplates(b *brief.Brief) error {
	var missing []string
	for _, t := range b.Templates {
		if t.FileID == "" {
			return fmt.Errorf("template %s has no file_id", t.Filename)
		}
		if _, err := os.Stat(b.TemplatePath(t)); err != nil {
			missing = append(missing, t.Filename)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing template files: %s", strings.Join(missing, ", "))
	}
	return nil
}

// processProduct runs the per-product stage. Any failure here skips only
// this product; the result always comes back as a value.
func (o *Orchestrator) processProduct(ctx context.Context, log zerolog.Logger, b *brief.Brief, p brief.Product, templates map[string]pipeline.AssetHandle) ProductResult {
	res := ProductResult{FileID: p.FileID, Name: p.Name}
	plog := log.With().Str("product", p.Name).Str("product_file_id", p.FileID).Logger()

	skip := func(reason string) ProductResult {
		res.Skipped = true
		res.SkipReason = reason
		plog.Warn().Str("reason", reason).Msg("product skipped")
		return res
	}

	if p.FileID == "" {
		return skip("product has no file_id")
	}

	src, skipReason := o.resolveProductImage(ctx, plog, b, p)
	if skipReason != "" {
		return skip(skipReason)
	}

	copyReq := pipeline.CopyRequest{
		ProductName:     p.Name,
		CampaignMessage: b.CampaignMessage,
		TargetAudience:  b.TargetAudience,
		TargetMarket:    b.TargetMarket,
	}

	// Copy and CTA are independent requests; a failure in either skips the
	// product since the strings are shared by every template rendition.
	var message, cta string
	cg, cgctx := errgroup.WithContext(ctx)
	cg.Go(func() error {
		var err error
		message, err = withRetry(cgctx, o.cfg.Retry, plog, "campaign message", func(ctx context.Context) (string, error) {
			return o.content.CampaignMessage(ctx, copyReq)
		})
		return err
	})
	cg.Go(func() error {
		var err error
		cta, err = withRetry(cgctx, o.cfg.Retry, plog, "call to action", func(ctx context.Context) (string, error) {
			return o.content.CallToAction(ctx, copyReq)
		})
		return err
	})
	if err := cg.Wait(); err != nil {
		return skip(fmt.Sprintf("content generation failed: %v", err))
	}

	res.Renditions = make([]RenditionResult, 0, len(b.Templates))
	for _, t := range b.Templates {
		res.Renditions = append(res.Renditions, o.processPair(ctx, plog, b, p, t, templates[t.FileID], src, message, cta))
	}

	plog.Info().Int("renditions", len(res.Renditions)).Msg("product processed")
	return res
}

// resolveProductImage stages the product's source image: uploading the local
// file when one is referenced, generating from the prompt otherwise. A
// non-empty skip reason means the product contributes zero renditions.
func (o *Orchestrator) resolveProductImage(ctx context.Context, plog zerolog.Logger, b *brief.Brief, p brief.Product) (pipeline.AssetHandle, string) {
	switch {
	case p.HasImage():
		path := b.ImagePath(p)
		if _, err := os.Stat(path); err != nil {
			return pipeline.AssetHandle{}, fmt.Sprintf("product image not found: %s", p.Image)
		}

		tmpDir, err := os.MkdirTemp("", "ad-pipeline-*")
		if err != nil {
			return pipeline.AssetHandle{}, fmt.Sprintf("failed to create temp directory: %v", err)
		}
		defer os.RemoveAll(tmpDir)

		normalized, err := imageprep.NormalizeFile(path, o.cfg.MaxImageDimension, tmpDir)
		if err != nil {
			return pipeline.AssetHandle{}, fmt.Sprintf("image normalization failed: %v", err)
		}

		h, err := withRetry(ctx, o.cfg.Retry, plog, "upload product image", func(ctx context.Context) (pipeline.AssetHandle, error) {
			return o.store.Upload(ctx, b.FileName, normalized)
		})
		if err != nil {
			return pipeline.AssetHandle{}, fmt.Sprintf("image upload failed: %v", err)
		}
		return h, ""

	case p.HasPrompt():
		h, err := withRetry(ctx, o.cfg.Retry, plog, "generate product image", func(ctx context.Context) (pipeline.AssetHandle, error) {
			return o.images.Generate(ctx, b.FileName, p.Prompt)
		})
		if err != nil {
			return pipeline.AssetHandle{}, fmt.Sprintf("image generation failed: %v", err)
		}
		return h, ""

	default:
		return pipeline.AssetHandle{}, "neither image nor prompt given"
	}
}

// processPair runs the six-step editing pipeline for one product x template
// combination. Each step depends on the previous step's handle, so order is
// fixed; any failure marks only this pair as failed.
func (o *Orchestrator) processPair(ctx context.Context, plog zerolog.Logger, b *brief.Brief, p brief.Product, t brief.Template, template, src pipeline.AssetHandle, message, cta string) RenditionResult {
	rr := RenditionResult{ProductFileID: p.FileID, TemplateFileID: t.FileID}
	tlog := plog.With().Str("template_file_id", t.FileID).Logger()

	fail := func(stage string, err error) RenditionResult {
		rr.Outcome = OutcomeFailed
		rr.Reason = fmt.Sprintf("%s: %v", stage, err)
		tlog.Error().Err(err).Str("stage", stage).Msg("rendition failed")
		return rr
	}

	doc, err := withRetry(ctx, o.cfg.Retry, tlog, "replace text", func(ctx context.Context) (pipeline.AssetHandle, error) {
		return o.editor.ReplaceText(ctx, template, map[string]string{
			pipeline.LayerCampaignText: message,
			pipeline.LayerCallToAction: cta,
		})
	})
	if err != nil {
		return fail("replace text", err)
	}

	cropped, err := withRetry(ctx, o.cfg.Retry, tlog, "crop", func(ctx context.Context) (pipeline.AssetHandle, error) {
		return o.images.Crop(ctx, src)
	})
	if err != nil {
		return fail("crop", err)
	}

	cutout, err := withRetry(ctx, o.cfg.Retry, tlog, "remove background", func(ctx context.Context) (pipeline.AssetHandle, error) {
		return o.images.RemoveBackground(ctx, cropped)
	})
	if err != nil {
		return fail("remove background", err)
	}

	final, err := withRetry(ctx, o.cfg.Retry, tlog, "replace embedded image", func(ctx context.Context) (pipeline.AssetHandle, error) {
		return o.editor.ReplaceEmbeddedImage(ctx, doc, cutout)
	})
	if err != nil {
		return fail("replace embedded image", err)
	}

	rendition, err := withRetry(ctx, o.cfg.Retry, tlog, "render", func(ctx context.Context) (pipeline.AssetHandle, error) {
		return o.editor.Render(ctx, final)
	})
	if err != nil {
		return fail("render", err)
	}

	outPath := filepath.Join(o.cfg.OutputRoot, b.FileName, fmt.Sprintf("%s_%s.png", p.FileID, t.FileID))
	if err := retryDo(ctx, o.cfg.Retry, tlog, "download rendition", func(ctx context.Context) error {
		return o.store.Download(ctx, rendition, outPath)
	}); err != nil {
		return fail("download rendition", err)
	}

	rr.Outcome = OutcomeSuccess
	rr.OutputPath = outPath
	tlog.Info().Str("output", outPath).Msg("rendition created")
	return rr
}
