package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryTokenStore struct {
	creds map[int64]Credentials
	saves int
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{creds: make(map[int64]Credentials)}
}

func (s *memoryTokenStore) GetCredentials(_ context.Context, id int64) (*Credentials, error) {
	c, ok := s.creds[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memoryTokenStore) SaveCredentials(_ context.Context, id int64, c Credentials) error {
	s.saves++
	s.creds[id] = c
	return nil
}

func TestGetValidTokenUsesCachedAccessToken(t *testing.T) {
	store := newMemoryTokenStore()
	store.creds[1] = Credentials{AccessToken: "fresh", RefreshToken: "r", ExpiresAt: time.Now().Unix() + 3600}

	provider := NewOAuthTokenProvider(store, "http://unused.invalid", "id", "secret", time.Second)

	token, err := provider.GetValidToken(context.Background(), 1, false)
	require.NoError(t, err)
	require.Equal(t, "fresh", token)
	require.Zero(t, store.saves)
}

func TestGetValidTokenRefreshesExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		fmt.Fprintf(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_at":%d}`, time.Now().Unix()+21600)
	}))
	defer server.Close()

	store := newMemoryTokenStore()
	store.creds[1] = Credentials{AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: time.Now().Unix() - 10}

	provider := NewOAuthTokenProvider(store, server.URL, "id", "secret", time.Second)

	token, err := provider.GetValidToken(context.Background(), 1, false)
	require.NoError(t, err)
	require.Equal(t, "new-access", token)
	require.Equal(t, 1, store.saves)
	require.Equal(t, "new-refresh", store.creds[1].RefreshToken)
}

func TestGetValidTokenForceBypassesCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `{"access_token":"forced","expires_at":%d}`, time.Now().Unix()+3600)
	}))
	defer server.Close()

	store := newMemoryTokenStore()
	store.creds[1] = Credentials{AccessToken: "cached", RefreshToken: "keep-me", ExpiresAt: time.Now().Unix() + 3600}

	provider := NewOAuthTokenProvider(store, server.URL, "id", "secret", time.Second)

	token, err := provider.GetValidToken(context.Background(), 1, true)
	require.NoError(t, err)
	require.Equal(t, "forced", token)
	require.Equal(t, 1, calls)
	// refresh token retained when the endpoint omits a replacement
	require.Equal(t, "keep-me", store.creds[1].RefreshToken)
}

func TestGetValidTokenUnknownParticipant(t *testing.T) {
	provider := NewOAuthTokenProvider(newMemoryTokenStore(), "http://unused.invalid", "id", "secret", time.Second)
	_, err := provider.GetValidToken(context.Background(), 99, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no upstream credentials")
}

func TestGetValidTokenEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad refresh token", http.StatusBadRequest)
	}))
	defer server.Close()

	store := newMemoryTokenStore()
	store.creds[1] = Credentials{RefreshToken: "revoked"}

	provider := NewOAuthTokenProvider(store, server.URL, "id", "secret", time.Second)
	_, err := provider.GetValidToken(context.Background(), 1, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 400")
}
