// Package docedit drives the remote document-editing service: text layer
// replacement, embedded-image replacement, and flattened renditions.
// Documents and results move as presigned URLs; the service reads from and
// writes into the asset store directly.
package docedit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/apierr"
	"github.com/adcraft/ad-pipeline/internal/imsauth"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// Signer presigns store URLs for the editing service.
type Signer interface {
	PresignGet(ctx context.Context, h pipeline.AssetHandle) (string, error)
	PresignPut(ctx context.Context, h pipeline.AssetHandle) (string, error)
}

// Options configures the document editor client.
type Options struct {
	BaseURL         string
	ClientID        string
	SmartObjectName string // embedded-image placeholder layer, default product_photo
	Tokens          *imsauth.TokenSource
	HTTPClient      *http.Client
}

// Client calls the document-editing API.
type Client struct {
	baseURL         string
	clientID        string
	smartObjectName string
	tokens          *imsauth.TokenSource
	httpClient      *http.Client
	signer          Signer
	logger          zerolog.Logger
}

// New creates a document editor backed by signer for asset URLs.
func New(opts Options, signer Signer, logger zerolog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	smartObject := opts.SmartObjectName
	if smartObject == "" {
		smartObject = "product_photo"
	}
	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		clientID:        opts.ClientID,
		smartObjectName: smartObject,
		tokens:          opts.Tokens,
		httpClient:      httpClient,
		signer:          signer,
		logger:          logger.With().Str("component", "docedit").Logger(),
	}
}

type externalRef struct {
	Href    string `json:"href"`
	Storage string `json:"storage"`
	Type    string `json:"type,omitempty"`
}

type layerEdit struct {
	Name string `json:"name"`
	Text *struct {
		Content string `json:"content"`
	} `json:"text,omitempty"`
	SmartObject *externalRef `json:"smartObject,omitempty"`
}

type editRequest struct {
	Inputs  []externalRef `json:"inputs"`
	Options struct {
		Layers []layerEdit `json:"layers,omitempty"`
		Format string      `json:"format,omitempty"`
	} `json:"options"`
	Outputs []externalRef `json:"outputs"`
}

// ReplaceText replaces the named text layers and returns a handle to the
// edited document. Layer order in the request is deterministic.
func (c *Client) ReplaceText(ctx context.Context, doc pipeline.AssetHandle, layers map[string]string) (pipeline.AssetHandle, error) {
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	edits := make([]layerEdit, 0, len(names))
	for _, name := range names {
		content := layers[name]
		edits = append(edits, layerEdit{
			Name: name,
			Text: &struct {
				Content string `json:"content"`
			}{Content: content},
		})
	}

	out := derived(doc, "text_replace", "")
	if err := c.submit(ctx, "replaceText", doc, out, func(req *editRequest) {
		req.Options.Layers = edits
	}); err != nil {
		return pipeline.AssetHandle{}, err
	}
	return out, nil
}

// ReplaceEmbeddedImage swaps the template's embedded-image placeholder with
// the given image asset and returns a handle to the edited document.
func (c *Client) ReplaceEmbeddedImage(ctx context.Context, doc, image pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	imageURL, err := c.signer.PresignGet(ctx, image)
	if err != nil {
		return pipeline.AssetHandle{}, fmt.Errorf("replace embedded image: %w", err)
	}

	out := derived(doc, "final_template", "")
	if err := c.submit(ctx, "replaceSmartObject", doc, out, func(req *editRequest) {
		req.Options.Layers = []layerEdit{{
			Name:        c.smartObjectName,
			SmartObject: &externalRef{Href: imageURL, Storage: "external"},
		}}
	}); err != nil {
		return pipeline.AssetHandle{}, err
	}
	return out, nil
}

// Render flattens the document into a PNG and returns the rendition handle.
func (c *Client) Render(ctx context.Context, doc pipeline.AssetHandle) (pipeline.AssetHandle, error) {
	out := derived(doc, "final_rendition", ".png")
	if err := c.submit(ctx, "createRendition", doc, out, func(req *editRequest) {
		req.Options.Format = "image/png"
		req.Outputs[0].Type = "image/png"
	}); err != nil {
		return pipeline.AssetHandle{}, err
	}
	return out, nil
}

// submit runs one editing operation: presign input/output, let mutate fill
// in the operation options, post, and check the status.
func (c *Client) submit(ctx context.Context, endpoint string, in, out pipeline.AssetHandle, mutate func(*editRequest)) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return apierr.New("docedit", http.StatusUnauthorized, err.Error())
	}

	inputURL, err := c.signer.PresignGet(ctx, in)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	outputURL, err := c.signer.PresignPut(ctx, out)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	reqBody := editRequest{
		Inputs:  []externalRef{{Href: inputURL, Storage: "external"}},
		Outputs: []externalRef{{Href: outputURL, Storage: "external"}},
	}
	mutate(&reqBody)

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", c.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.Wrap("docedit", endpoint+" request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.New("docedit", resp.StatusCode, endpoint+" failed")
	}

	c.logger.Debug().Str("endpoint", endpoint).Str("output", out.Key).Msg("edit applied")
	return nil
}

// derived builds the output handle for an editing stage. ext overrides the
// input's extension when the operation changes format.
func derived(in pipeline.AssetHandle, stage, ext string) pipeline.AssetHandle {
	base := path.Base(in.Key)
	if ext != "" {
		base = strings.TrimSuffix(base, path.Ext(base)) + ext
	}
	return pipeline.AssetHandle{
		Namespace: in.Namespace,
		Key:       stage + "/" + uuid.NewString()[:8] + "_" + base,
	}
}
