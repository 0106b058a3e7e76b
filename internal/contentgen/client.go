// Package contentgen generates campaign copy and call-to-action text through
// an OpenAI-compatible chat completion API.
package contentgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/apierr"
	"github.com/adcraft/ad-pipeline/internal/config"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// DefaultCallToAction is the CTA the original pipeline fell back to when
// generation failed. Kept as the documented default for callers that want a
// static CTA; the orchestrator itself records generation failures instead of
// substituting it.
const DefaultCallToAction = "Shop Now"

const defaultTimeout = 30 * time.Second

// Client calls a chat-completion endpoint for short marketing copy.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	logger      zerolog.Logger
}

// New creates a content-generation client.
func New(cfg config.ContentConfig, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("content generator api key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     baseURL,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      logger.With().Str("component", "contentgen").Logger(),
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CampaignMessage returns campaign copy tailored to one product.
func (c *Client) CampaignMessage(ctx context.Context, req pipeline.CopyRequest) (string, error) {
	prompt := fmt.Sprintf(`You are a marketing copywriter creating compelling ad copy for a product.

Base campaign message: %s
Product name: %s
Target audience: %s
Target market: %s

Create a tailored, compelling campaign message that speaks directly to the
target audience, fits the target market's language and cultural context,
highlights the product name naturally, and keeps the core message. Two to
three sentences at most. Return only the final campaign message.`,
		req.CampaignMessage, req.ProductName, req.TargetAudience, req.TargetMarket)

	msg, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("product", req.ProductName).Msg("generated campaign message")
	return msg, nil
}

// CallToAction returns short action-oriented CTA text for one product.
func (c *Client) CallToAction(ctx context.Context, req pipeline.CopyRequest) (string, error) {
	prompt := fmt.Sprintf(`You are a marketing copywriter creating call-to-action (CTA) text for a product.

Product name: %s
Target audience: %s
Target market: %s
Campaign message: %s

Create a compelling, action-oriented CTA of one to four words, appropriate
for the audience and market. Examples: "Shop Now", "Get Yours",
"Discover More", "Order Today". Return only the CTA text.`,
		req.ProductName, req.TargetAudience, req.TargetMarket, req.CampaignMessage)

	cta, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("product", req.ProductName).Msg("generated call to action")
	return cta, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apierr.Wrap("contentgen", "completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apierr.New("contentgen", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("completion response was empty")
	}
	return text, nil
}
