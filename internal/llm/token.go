package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// fetchToken performs the OAuth2 client-credentials exchange against
// cfg.AuthURL. This is a single, narrow boundary call (one POST, one JSON
// body) with no retry/backoff/transport concerns beyond what net/http
// already gives us, so it stays on the standard library rather than
// pulling in a general OAuth2 client for a single grant type.
func (c *gigaChatClient) fetchToken(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", c.cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	httpClient := &http.Client{Timeout: c.cfg.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token endpoint returned no access_token")
	}

	var expiry time.Time
	if tr.ExpiresAt > 0 {
		expiry = time.UnixMilli(tr.ExpiresAt)
	} else {
		expiry = time.Now().Add(25 * time.Minute)
	}
	return tr.AccessToken, expiry, nil
}
