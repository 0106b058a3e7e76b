// Package imagegen generates product images from prompts and performs the
// crop and background-removal steps of the rendition pipeline.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/apierr"
	"github.com/adcraft/ad-pipeline/internal/imageprep"
	"github.com/adcraft/ad-pipeline/internal/imsauth"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// AssetRW is the slice of the asset store this client needs: byte access for
// the local crop step and presigned URLs for the remote background removal.
type AssetRW interface {
	Get(ctx context.Context, h pipeline.AssetHandle) (io.ReadCloser, error)
	Put(ctx context.Context, h pipeline.AssetHandle, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, h pipeline.AssetHandle) (string, error)
	PresignPut(ctx context.Context, h pipeline.AssetHandle) (string, error)
}

// cropSize is the square size product images are cropped to before they are
// placed into a template.
const cropSize = 1024

// promptSuffix steers generation toward usable product shots.
const promptSuffix = "Professional product photography style. Clean white background. " +
	"High quality, commercial photography. Sharp focus, good lighting. " +
	"Suitable for e-commerce and advertising."

// Options configures the image generator client.
type Options struct {
	GenerateBaseURL string // image-generation API, e.g. https://firefly-api.adobe.io/v2
	EditBaseURL     string // image-editing API used for background removal
	ClientID        string
	Tokens          *imsauth.TokenSource
	HTTPClient      *http.Client
}

// Client implements prompt-based generation plus crop and background removal.
type Client struct {
	generateBaseURL string
	editBaseURL     string
	clientID        string
	tokens          *imsauth.TokenSource
	httpClient      *http.Client
	store           AssetRW
	logger          zerolog.Logger
}

// New creates an image generator backed by store for asset bytes.
func New(opts Options, store AssetRW, logger zerolog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		generateBaseURL: strings.TrimRight(opts.GenerateBaseURL, "/"),
		editBaseURL:     strings.TrimRight(opts.EditBaseURL, "/"),
		clientID:        opts.ClientID,
		tokens:          opts.Tokens,
		httpClient:      httpClient,
		store:           store,
		logger:          logger.With().Str("component", "imagegen").Logger(),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Size   struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"size"`
	Style struct {
		Preset string `json:"preset"`
	} `json:"style"`
	N int `json:"n"`
}

type generateResponse struct {
	Outputs []struct {
		Image struct {
			PresignedURL string `json:"presignedUrl"`
		} `json:"image"`
	} `json:"outputs"`
}

// Generate submits the prompt to the generation service, fetches the result,
// and stores it under the namespace. The prompt is decorated with product
// photography directives before submission.
func (c *Client) Generate(ctx context.Context, namespace, prompt string) (pipeline.AssetHandle, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return pipeline.AssetHandle{}, apierr.New("imagegen", http.StatusUnauthorized, err.Error())
	}

	reqBody := generateRequest{Prompt: strings.TrimSpace(prompt) + "\n\n" + promptSuffix, N: 1}
	reqBody.Size.Width = cropSize
	reqBody.Size.Height = cropSize
	reqBody.Style.Preset = "photographic"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateBaseURL+"/images/generate", bytes.NewReader(body))
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("failed to create generate request: %w", err)
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.AssetHandle{}, apierr.Wrap("imagegen", "generate request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pipeline.AssetHandle{}, apierr.New("imagegen", resp.StatusCode, "generate failed")
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("failed to decode generate response: %w", err)
	}
	if len(parsed.Outputs) == 0 || parsed.Outputs[0].Image.PresignedURL == "" {
		return pipeline.AssetHandle{}, fmt.Errorf("generate response contained no image url")
	}

	out := pipeline.AssetHandle{Namespace: namespace, Key: "generated_" + shortID() + ".png"}
	if err := c.fetchInto(ctx, parsed.Outputs[0].Image.PresignedURL, out); err != nil {
		return pipeline.AssetHandle{}, err
	}

	c.logger.Debug().Str("namespace", namespace).Str("key", out.Key).Msg("generated product image")
	return out, nil
}

// Crop center-crops the image to a square and stores the result as a new
// asset. The crop runs locally; only storage round-trips are remote.
func (c *Client) Crop(ctx context.Context, h pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	r, err := c.store.Get(ctx, h)
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("crop: %w", err)
	}
	defer r.Close()

	img, err := imageprep.Decode(r)
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("crop: failed to decode %s: %w", h.Key, err)
	}

	cropped := imageprep.CenterCrop(img, cropSize, cropSize)

	var buf bytes.Buffer
	if err := imageprep.EncodePNG(&buf, cropped); err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("crop: failed to encode: %w", err)
	}

	out := derived(h, "crop")
	if err := c.store.Put(ctx, out, &buf, int64(buf.Len()), "image/png"); err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("crop: %w", err)
	}
	return out, nil
}

type removeBackgroundRequest struct {
	Inputs  []externalRef `json:"inputs"`
	Options struct {
		RemoveBackground bool `json:"removeBackground"`
	} `json:"options"`
	Outputs []externalRef `json:"outputs"`
}

type externalRef struct {
	Href    string `json:"href"`
	Storage string `json:"storage"`
	Type    string `json:"type,omitempty"`
}

// RemoveBackground asks the editing service to cut the subject out of the
// image. Input and output travel as presigned URLs; the service writes the
// result directly into the store.
func (c *Client) RemoveBackground(ctx context.Context, h pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return pipeline.AssetHandle{}, apierr.New("imagegen", http.StatusUnauthorized, err.Error())
	}

	inputURL, err := c.store.PresignGet(ctx, h)
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("remove background: %w", err)
	}

	out := derived(h, "cutout")
	outputURL, err := c.store.PresignPut(ctx, out)
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("remove background: %w", err)
	}

	reqBody := removeBackgroundRequest{
		Inputs:  []externalRef{{Href: inputURL, Storage: "external"}},
		Outputs: []externalRef{{Href: outputURL, Storage: "external", Type: "image/png"}},
	}
	reqBody.Options.RemoveBackground = true

	body, err := json.Marshal(reqBody)
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("failed to marshal removeBackground request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.editBaseURL+"/removeBackground", bytes.NewReader(body))
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("failed to create removeBackground request: %w", err)
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pipeline.AssetHandle{}, apierr.Wrap("imagegen", "removeBackground request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipeline.AssetHandle{}, apierr.New("imagegen", resp.StatusCode, "removeBackground failed")
	}

	return out, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", c.clientID)
	req.Header.Set("Content-Type", "application/json")
}

// fetchInto downloads a service-hosted result and stores it under h.
func (c *Client) fetchInto(ctx context.Context, url string, h pipeline.AssetHandle) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.Wrap("imagegen", "fetch generated image failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apierr.New("imagegen", resp.StatusCode, "fetch generated image failed")
	}

	return c.store.Put(ctx, h, resp.Body, -1, "image/png")
}

// derived builds the output handle for a processing stage, keyed under a
// stage prefix so intermediate assets never collide across pairs.
func derived(in pipeline.AssetHandle, stage string) pipeline.AssetHandle {
	return pipeline.AssetHandle{
		Namespace: in.Namespace,
		Key:       stage + "/" + shortID() + "_" + path.Base(in.Key),
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
