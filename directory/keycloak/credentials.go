package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/CorsairOps/user-service/errors"
)

// Credential is the short-lived bearer token the service uses against
// the directory's admin API. It lives only in process memory.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// CredentialManager acquires and caches the service credential via the
// client-credentials grant. The single credential slot is guarded by a
// mutex, so concurrent callers serialize on a refresh instead of racing;
// a known-expired credential is never handed out.
type CredentialManager struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	mu   sync.Mutex
	cred Credential

	now func() time.Time
}

// NewCredentialManager builds a manager for one realm's token endpoint.
func NewCredentialManager(httpClient *http.Client, baseURL, realm, clientID, clientSecret string) *CredentialManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CredentialManager{
		httpClient:   httpClient,
		tokenURL:     fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimRight(baseURL, "/"), realm),
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Ensure returns a valid credential, requesting a new one iff none is
// held or the held one has expired. No network call happens otherwise.
func (m *CredentialManager) Ensure(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred.Token != "" && m.now().Before(m.cred.ExpiresAt) {
		return m.cred, nil
	}

	log.Ctx(ctx).Info().Msg("service credential missing or expired, authenticating")

	cred, err := m.authenticate(ctx)
	if err != nil {
		return Credential{}, err
	}
	m.cred = cred
	return m.cred, nil
}

// Invalidate drops the held credential so the next Ensure re-authenticates.
// Used when the directory rejects a request as unauthorized.
func (m *CredentialManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
}

func (m *CredentialManager) authenticate(ctx context.Context) (Credential, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, apperrors.NewAuthBackendUnavailable(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Credential{}, apperrors.NewAuthBackendUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credential{}, apperrors.NewAuthBackendUnavailable(
			fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Credential{}, apperrors.NewAuthBackendUnavailable(
			fmt.Errorf("failed to decode token response: %w", err))
	}
	if body.AccessToken == "" {
		return Credential{}, apperrors.NewAuthBackendUnavailable(
			fmt.Errorf("token endpoint returned no access token"))
	}

	return Credential{
		Token:     body.AccessToken,
		ExpiresAt: m.now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
