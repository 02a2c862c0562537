package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Credentials is the OAuth material stored per participant.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // epoch seconds
}

// TokenStore persists per-participant OAuth credentials.
type TokenStore interface {
	GetCredentials(ctx context.Context, participantID int64) (*Credentials, error)
	SaveCredentials(ctx context.Context, participantID int64, creds Credentials) error
}

// expirySlack refreshes tokens slightly before their deadline so an
// in-flight reconciliation does not race expiry.
const expirySlack = 60

// OAuthTokenProvider exchanges stored refresh tokens against the upstream
// token endpoint and reuses access tokens until shortly before expiry.
type OAuthTokenProvider struct {
	store        TokenStore
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time
}

// NewOAuthTokenProvider constructs a provider for the given token endpoint.
func NewOAuthTokenProvider(store TokenStore, tokenURL, clientID, clientSecret string, timeout time.Duration) *OAuthTokenProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OAuthTokenProvider{
		store:        store,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// GetValidToken returns a usable access token, refreshing it when forced or
// when the stored token is at or past its expiry slack.
func (p *OAuthTokenProvider) GetValidToken(ctx context.Context, participantID int64, forceRefresh bool) (string, error) {
	creds, err := p.store.GetCredentials(ctx, participantID)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", fmt.Errorf("participant %d has no upstream credentials", participantID)
	}

	if !forceRefresh && creds.AccessToken != "" && creds.ExpiresAt-expirySlack > p.now().Unix() {
		return creds.AccessToken, nil
	}

	refreshed, err := p.refresh(ctx, creds.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refreshing token for participant %d: %w", participantID, err)
	}
	if err := p.store.SaveCredentials(ctx, participantID, *refreshed); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (p *OAuthTokenProvider) refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	creds := &Credentials{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    payload.ExpiresAt,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	return creds, nil
}
