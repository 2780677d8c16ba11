package keycloak

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/CorsairOps/user-service/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenEndpoint(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/realms/corsairops/protocol/openid-connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "user-service", r.PostForm.Get("client_id"))
		require.Equal(t, "s3cret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok-abc", "expires_in": 300}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCredentialManager_ReusesValidCredential(t *testing.T) {
	var calls atomic.Int32
	server := newTokenEndpoint(t, &calls)

	m := NewCredentialManager(server.Client(), server.URL, "corsairops", "user-service", "s3cret")

	cred, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", cred.Token)

	// Second call within the validity window must not hit the network.
	again, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cred.Token, again.Token)
	assert.EqualValues(t, 1, calls.Load())
}

func TestCredentialManager_RefreshesExpiredCredential(t *testing.T) {
	var calls atomic.Int32
	server := newTokenEndpoint(t, &calls)

	now := time.Now()
	m := NewCredentialManager(server.Client(), server.URL, "corsairops", "user-service", "s3cret")
	m.now = func() time.Time { return now }

	_, err := m.Ensure(context.Background())
	require.NoError(t, err)

	// Jump past expires_in; the held credential is now stale.
	now = now.Add(301 * time.Second)

	cred, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", cred.Token)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCredentialManager_Invalidate(t *testing.T) {
	var calls atomic.Int32
	server := newTokenEndpoint(t, &calls)

	m := NewCredentialManager(server.Client(), server.URL, "corsairops", "user-service", "s3cret")

	_, err := m.Ensure(context.Background())
	require.NoError(t, err)

	m.Invalidate()

	_, err = m.Ensure(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCredentialManager_RejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	m := NewCredentialManager(server.Client(), server.URL, "corsairops", "user-service", "wrong")

	_, err := m.Ensure(context.Background())
	assert.True(t, apperrors.IsAuthBackendUnavailable(err))
}

func TestCredentialManager_UnreachableEndpoint(t *testing.T) {
	m := NewCredentialManager(&http.Client{Timeout: 50 * time.Millisecond},
		"http://127.0.0.1:1", "corsairops", "user-service", "s3cret")

	_, err := m.Ensure(context.Background())
	assert.True(t, apperrors.IsAuthBackendUnavailable(err))
}

func TestCredentialManager_ConcurrentEnsure(t *testing.T) {
	var calls atomic.Int32
	server := newTokenEndpoint(t, &calls)

	m := NewCredentialManager(server.Client(), server.URL, "corsairops", "user-service", "s3cret")

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := m.Ensure(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-abc", cred.Token)
		}()
	}
	wg.Wait()

	// The mutex serializes the refresh: one network call for all callers.
	assert.EqualValues(t, 1, calls.Load())
}
