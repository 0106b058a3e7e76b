// Package imsauth obtains service access tokens with the client-credentials
// grant shared by the image-generation and document-editing APIs.
package imsauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenSource fetches and caches an access token.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       string
	httpClient   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// New creates a token source. scopes is a comma-separated scope list.
func New(tokenURL, clientID, clientSecret, scopes string, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		httpClient:   httpClient,
	}
}

// Token returns a valid access token, refreshing it when within a minute of
// expiry. Token failures are never retried here; an auth error is permanent
// for the calling stage.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Until(ts.expiry) > time.Minute {
		return ts.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"scope":         {ts.scopes},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	ts.token = body.AccessToken
	ts.expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return ts.token, nil
}
