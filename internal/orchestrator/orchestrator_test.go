package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcraft/ad-pipeline/internal/apierr"
	"github.com/adcraft/ad-pipeline/internal/brief"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// fakeStore records asset store calls and lets tests inject failures.
type fakeStore struct {
	mu          sync.Mutex
	calls       int
	namespaces  []string
	uploads     []string
	downloads   []string
	createErr   error
	uploadErrs  map[string]error // keyed by base filename
	downloadErr error
	failUploads int // fail this many uploads with a transient error, then succeed
}

func (s *fakeStore) bump() {
	s.calls++
}

func (s *fakeStore) CreateNamespace(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump()
	if s.createErr != nil {
		return s.createErr
	}
	s.namespaces = append(s.namespaces, name)
	return nil
}

func (s *fakeStore) Upload(ctx context.Context, namespace, localPath string) (pipeline.AssetHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump()
	base := filepath.Base(localPath)
	if s.failUploads > 0 {
		s.failUploads--
		return pipeline.AssetHandle{}, apierr.Wrap("assetstore", "connection reset", errors.New("reset"))
	}
	if err, ok := s.uploadErrs[base]; ok {
		return pipeline.AssetHandle{}, err
	}
	s.uploads = append(s.uploads, base)
	return pipeline.AssetHandle{Namespace: namespace, Key: base}, nil
}

func (s *fakeStore) Download(ctx context.Context, h pipeline.AssetHandle, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump()
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.downloads = append(s.downloads, destPath)
	return nil
}

func (s *fakeStore) remoteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeImages implements ImageGenerator with per-method error injection.
type fakeImages struct {
	mu          sync.Mutex
	generated   []string
	generateErr error
	cropErr     error
	failCropN   int // fail the Nth crop call (1-based), permanent
	cropCalls   int
	removeErr   error
}

func (f *fakeImages) Generate(ctx context.Context, namespace, prompt string) (pipeline.AssetHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return pipeline.AssetHandle{}, f.generateErr
	}
	f.generated = append(f.generated, prompt)
	return pipeline.AssetHandle{Namespace: namespace, Key: fmt.Sprintf("generated_%d.png", len(f.generated))}, nil
}

func (f *fakeImages) Crop(ctx context.Context, h pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cropCalls++
	if f.cropErr != nil {
		return pipeline.AssetHandle{}, f.cropErr
	}
	if f.failCropN > 0 && f.cropCalls == f.failCropN {
		return pipeline.AssetHandle{}, apierr.New("imagegen", http.StatusUnprocessableEntity, "undecodable image")
	}
	return pipeline.AssetHandle{Namespace: h.Namespace, Key: "crop/" + h.Key}, nil
}

func (f *fakeImages) RemoveBackground(ctx context.Context, h pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return pipeline.AssetHandle{}, f.removeErr
	}
	return pipeline.AssetHandle{Namespace: h.Namespace, Key: "cutout/" + h.Key}, nil
}

// fakeEditor implements DocumentEditor.
type fakeEditor struct {
	mu               sync.Mutex
	replaceTextCalls int
	failReplaceTextN int // fail the Nth ReplaceText call (1-based), permanent
	lastLayers       map[string]string
	replaceImageErr  error
	renderErr        error
}

func (f *fakeEditor) ReplaceText(ctx context.Context, doc pipeline.AssetHandle, layers map[string]string) (pipeline.AssetHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceTextCalls++
	if f.failReplaceTextN > 0 && f.replaceTextCalls == f.failReplaceTextN {
		return pipeline.AssetHandle{}, apierr.New("docedit", http.StatusBadRequest, "layer not found")
	}
	f.lastLayers = layers
	return pipeline.AssetHandle{Namespace: doc.Namespace, Key: "text/" + doc.Key}, nil
}

func (f *fakeEditor) ReplaceEmbeddedImage(ctx context.Context, doc, img pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceImageErr != nil {
		return pipeline.AssetHandle{}, f.replaceImageErr
	}
	return pipeline.AssetHandle{Namespace: doc.Namespace, Key: "final/" + doc.Key}, nil
}

func (f *fakeEditor) Render(ctx context.Context, doc pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renderErr != nil {
		return pipeline.AssetHandle{}, f.renderErr
	}
	return pipeline.AssetHandle{Namespace: doc.Namespace, Key: "rendition/" + doc.Key + ".png"}, nil
}

// fakeContent implements ContentGenerator.
type fakeContent struct {
	mu         sync.Mutex
	messageErr error
	ctaErr     error
}

func (f *fakeContent) CampaignMessage(ctx context.Context, req pipeline.CopyRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messageErr != nil {
		return "", f.messageErr
	}
	return "Buy " + req.ProductName + " now", nil
}

func (f *fakeContent) CallToAction(ctx context.Context, req pipeline.CopyRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctaErr != nil {
		return "", f.ctaErr
	}
	return "Shop Now", nil
}

type fixture struct {
	dir     string
	store   *fakeStore
	images  *fakeImages
	editor  *fakeEditor
	content *fakeContent
	orch    *Orchestrator
	out     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:     t.TempDir(),
		out:     t.TempDir(),
		store:   &fakeStore{},
		images:  &fakeImages{},
		editor:  &fakeEditor{},
		content: &fakeContent{},
	}
	f.orch = New(Config{
		OutputRoot:            f.out,
		Retry:                 RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		MaxConcurrentProducts: 1,
	}, f.store, f.images, f.editor, f.content, zerolog.Nop())
	return f
}

// writePNG writes a small decodable image so normalization has real bytes.
func writePNG(t *testing.T, dir, name string) {
	t.Helper()
	fh, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer fh.Close()
	require.NoError(t, png.Encode(fh, image.NewRGBA(image.Rect(0, 0, 8, 8))))
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("psd bytes"), 0o644))
}

func (f *fixture) brief(t *testing.T) *brief.Brief {
	t.Helper()
	touch(t, f.dir, "square.psd")
	touch(t, f.dir, "banner.psd")
	writePNG(t, f.dir, "shoes.png")
	return &brief.Brief{
		CampaignName:    "Summer Launch",
		CampaignMessage: "Stay cool",
		TargetAudience:  "runners",
		TargetMarket:    "US",
		Templates: []brief.Template{
			{FileID: "t1", Filename: "square.psd"},
			{FileID: "t2", Filename: "banner.psd"},
		},
		Products: []brief.Product{
			{Name: "Shoes", FileID: "p1", Image: "shoes.png"},
			{Name: "Towel", FileID: "p2", Prompt: "a striped towel"},
		},
		FileName: "summer.yaml",
		Dir:      f.dir,
	}
}

func TestProcessCampaignFullMatrix(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.SkippedProducts)

	// Products and renditions come back in brief order.
	require.Len(t, summary.Products, 2)
	assert.Equal(t, "p1", summary.Products[0].FileID)
	assert.Equal(t, "p2", summary.Products[1].FileID)
	require.Len(t, summary.Products[0].Renditions, 2)
	assert.Equal(t, "t1", summary.Products[0].Renditions[0].TemplateFileID)
	assert.Equal(t, "t2", summary.Products[0].Renditions[1].TemplateFileID)

	// Output naming: {outputRoot}/{briefFile}/{productFileID}_{templateFileID}.png
	want := filepath.Join(f.out, "summer.yaml", "p1_t1.png")
	assert.Equal(t, want, summary.Products[0].Renditions[0].OutputPath)

	// One generated image for the prompt-only product.
	assert.Equal(t, []string{"a striped towel"}, f.images.generated)
}

func TestProcessCampaignSinglePairFailureContained(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	f.editor.failReplaceTextN = 1

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	failed := summary.Products[0].Renditions[0]
	assert.Equal(t, OutcomeFailed, failed.Outcome)
	assert.Contains(t, failed.Reason, "replace text")
	assert.Empty(t, failed.OutputPath)
}

func TestProcessCampaignMissingTemplateFileAbortsBeforeRemoteCalls(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "banner.psd")))

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.Error(t, err)

	assert.Equal(t, StateAborted, summary.State)
	assert.Contains(t, summary.AbortReason, "banner.psd")
	assert.Equal(t, 0, f.store.remoteCalls())
	assert.Empty(t, summary.Products)
}

func TestProcessCampaignNamespaceFailureAborts(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	f.store.createErr = apierr.New("assetstore", http.StatusForbidden, "denied")

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.Error(t, err)

	assert.Equal(t, StateAborted, summary.State)
	assert.Contains(t, summary.AbortReason, "namespace setup")
}

func TestProcessCampaignTemplateUploadFailureAborts(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	f.store.uploadErrs = map[string]error{
		"square.psd": apierr.New("assetstore", http.StatusBadRequest, "rejected"),
	}

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.Error(t, err)

	assert.Equal(t, StateAborted, summary.State)
	assert.Contains(t, summary.AbortReason, "template staging")
}

func TestProcessCampaignTransientUploadRecovers(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	f.store.failUploads = 1

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 4, summary.Succeeded)
}

func TestProcessCampaignProductWithoutFileIDSkipped(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	b.Products[0].FileID = ""

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedProducts)
	assert.True(t, summary.Products[0].Skipped)
	assert.Contains(t, summary.Products[0].SkipReason, "file_id")
	assert.Equal(t, 2, summary.Succeeded)
}

func TestProcessCampaignProductWithoutSourceSkipped(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	b.Products[1].Prompt = ""

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.True(t, summary.Products[1].Skipped)
	assert.Contains(t, summary.Products[1].SkipReason, "neither image nor prompt")
	assert.Equal(t, 2, summary.Succeeded)
}

func TestProcessCampaignMissingImageFileSkipsProduct(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "shoes.png")))

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.True(t, summary.Products[0].Skipped)
	assert.Contains(t, summary.Products[0].SkipReason, "not found")
	// The other product still completes.
	assert.Equal(t, 2, summary.Succeeded)
}

func TestProcessCampaignGenerationFailureSkipsProduct(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	f.images.generateErr = apierr.New("imagegen", http.StatusBadRequest, "prompt rejected")

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.True(t, summary.Products[1].Skipped)
	assert.Contains(t, summary.Products[1].SkipReason, "image generation failed")
	assert.Equal(t, 2, summary.Succeeded)
}

func TestProcessCampaignContentFailureSkipsProduct(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	f.content.ctaErr = apierr.New("contentgen", http.StatusUnauthorized, "bad key")

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SkippedProducts)
	assert.Equal(t, 0, summary.Succeeded)
	for _, p := range summary.Products {
		assert.Contains(t, p.SkipReason, "content generation failed")
	}
}

func TestProcessCampaignTextLayersCarryGeneratedCopy(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	b.Products = b.Products[:1]

	_, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	require.NotNil(t, f.editor.lastLayers)
	assert.Equal(t, "Buy Shoes now", f.editor.lastLayers[pipeline.LayerCampaignText])
	assert.Equal(t, "Shop Now", f.editor.lastLayers[pipeline.LayerCallToAction])
}

func TestProcessCampaignInvalidBrief(t *testing.T) {
	f := newFixture(t)
	b := &brief.Brief{FileName: "empty.yaml", Dir: f.dir}

	_, err := f.orch.ProcessCampaign(context.Background(), b)
	require.ErrorIs(t, err, ErrInvalidBrief)
	assert.Equal(t, 0, f.store.remoteCalls())
}

func TestProcessCampaignTemplateWithoutFileIDFailsValidation(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	b.Templates[1].FileID = ""

	_, err := f.orch.ProcessCampaign(context.Background(), b)
	require.ErrorIs(t, err, ErrInvalidBrief)
	assert.Equal(t, 0, f.store.remoteCalls())
}

func TestProcessCampaignDownloadFailureFailsPair(t *testing.T) {
	f := newFixture(t)
	b := f.brief(t)
	b.Products = b.Products[:1]
	b.Templates = b.Templates[:1]
	f.store.downloadErr = apierr.New("assetstore", http.StatusNotFound, "gone")

	summary, err := f.orch.ProcessCampaign(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Products[0].Renditions[0].Reason, "download rendition")
}

func TestSummaryTally(t *testing.T) {
	s := &CampaignSummary{
		Products: []ProductResult{
			{FileID: "p1", Renditions: []RenditionResult{
				{Outcome: OutcomeSuccess},
				{Outcome: OutcomeFailed},
			}},
			{FileID: "p2", Skipped: true},
		},
	}
	s.tally()

	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.SkippedProducts)
	assert.Len(t, s.Renditions(), 2)
}
