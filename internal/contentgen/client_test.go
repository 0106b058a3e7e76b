package contentgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcraft/ad-pipeline/internal/apierr"
	"github.com/adcraft/ad-pipeline/internal/config"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(config.ContentConfig{
		APIKey:    "test-key",
		Model:     "test-model",
		BaseURL:   srv.URL,
		MaxTokens: 256,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func completionResponse(content string) string {
	return `{"choices":[{"message":{"content":` + jsonString(content) + `}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.ContentConfig{}, zerolog.Nop())
	require.Error(t, err)
}

func TestCampaignMessage(t *testing.T) {
	var got chatRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(completionResponse("  Fresh kicks for fast feet.  ")))
	})

	msg, err := c.CampaignMessage(context.Background(), pipeline.CopyRequest{
		ProductName:     "Shoes",
		CampaignMessage: "Run further",
		TargetAudience:  "runners",
		TargetMarket:    "US",
	})
	require.NoError(t, err)

	assert.Equal(t, "Fresh kicks for fast feet.", msg)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, "Shoes")
	assert.Contains(t, got.Messages[0].Content, "runners")
}

func TestCallToAction(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("Get Yours")))
	})

	cta, err := c.CallToAction(context.Background(), pipeline.CopyRequest{ProductName: "Towel"})
	require.NoError(t, err)
	assert.Equal(t, "Get Yours", cta)
}

func TestCompleteRateLimitIsRetryable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := c.CampaignMessage(context.Background(), pipeline.CopyRequest{})
	require.Error(t, err)
	assert.True(t, apierr.IsRetryable(err))
}

func TestCompleteAuthFailureIsPermanent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := c.CallToAction(context.Background(), pipeline.CopyRequest{})
	require.Error(t, err)
	assert.False(t, apierr.IsRetryable(err))
}

func TestCompleteEmptyResponse(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := c.CampaignMessage(context.Background(), pipeline.CopyRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
