// Package app wires the pipeline clients into a ready-to-use orchestrator.
// Both the CLI and the worker build their processing stack here.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/assetstore"
	"github.com/adcraft/ad-pipeline/internal/config"
	"github.com/adcraft/ad-pipeline/internal/contentgen"
	"github.com/adcraft/ad-pipeline/internal/docedit"
	"github.com/adcraft/ad-pipeline/internal/imagegen"
	"github.com/adcraft/ad-pipeline/internal/imsauth"
	"github.com/adcraft/ad-pipeline/internal/orchestrator"
)

// imsScopes is the scope list requested for the image and document services.
const imsScopes = "openid,AdobeID,firefly_api,ff_apis"

// Stack is the assembled processing stack.
type Stack struct {
	Store        *assetstore.Store
	Orchestrator *orchestrator.Orchestrator
}

// Build assembles the asset store, the three service clients, and the
// orchestrator from settings.
func Build(cfg *config.Settings, logger zerolog.Logger) (*Stack, error) {
	store, err := assetstore.New(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize asset store: %w", err)
	}

	content, err := contentgen.New(cfg.Content, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content generator: %w", err)
	}

	tokens := imsauth.New(cfg.Services.TokenURL, cfg.Services.ClientID, cfg.Services.ClientSecret, imsScopes, nil)

	images := imagegen.New(imagegen.Options{
		GenerateBaseURL: cfg.Services.ImageAPIBase,
		EditBaseURL:     cfg.Services.EditAPIBase,
		ClientID:        cfg.Services.ClientID,
		Tokens:          tokens,
	}, store, logger)

	editor := docedit.New(docedit.Options{
		BaseURL:         cfg.Services.EditAPIBase,
		ClientID:        cfg.Services.ClientID,
		SmartObjectName: cfg.Services.SmartObjectName,
		Tokens:          tokens,
	}, store, logger)

	orch := orchestrator.New(orchestrator.Config{
		OutputRoot: cfg.OutputDir,
		Retry: orchestrator.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		MaxConcurrentProducts: cfg.MaxConcurrentProducts,
	}, store, images, editor, content, logger)

	return &Stack{Store: store, Orchestrator: orch}, nil
}
