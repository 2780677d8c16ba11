// Package keycloak adapts the Keycloak admin REST API to the directory
// client contract for a single realm.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/CorsairOps/user-service/directory"
	"github.com/CorsairOps/user-service/domain"
)

// pageSize is how many records one listing request asks for. Keycloak
// paginates with first/max query params.
const pageSize = 500

// Client talks to the Keycloak admin REST API. All requests carry the
// bearer credential from the CredentialManager; an unauthorized reply
// triggers exactly one refresh-and-retry before giving up.
type Client struct {
	httpClient *http.Client
	adminBase  string
	creds      *CredentialManager

	// maxUsers bounds how many records ListAll and FilterByAttribute
	// will pull regardless of backend population.
	maxUsers int
	// populationOracle gates the users/count freshness signal.
	populationOracle bool
}

// Options tune the adapter beyond its connection settings.
type Options struct {
	// MaxUsers caps full listings; zero means the default of 5000.
	MaxUsers int
	// PopulationOracle enables the users/count endpoint as a cache
	// freshness signal.
	PopulationOracle bool
}

// NewClient builds a directory client for one realm.
func NewClient(httpClient *http.Client, baseURL, realm string, creds *CredentialManager, opts Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxUsers := opts.MaxUsers
	if maxUsers <= 0 {
		maxUsers = 5000
	}
	return &Client{
		httpClient:       httpClient,
		adminBase:        fmt.Sprintf("%s/admin/realms/%s", trimSlash(baseURL), realm),
		creds:            creds,
		maxUsers:         maxUsers,
		populationOracle: opts.PopulationOracle,
	}
}

// userRepresentation mirrors the fields of Keycloak's UserRepresentation
// this service consumes.
type userRepresentation struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	FirstName        string   `json:"firstName"`
	LastName         string   `json:"lastName"`
	Enabled          bool     `json:"enabled"`
	CreatedTimestamp int64    `json:"createdTimestamp"`
	RealmRoles       []string `json:"realmRoles"`
}

func (u userRepresentation) record() domain.UserRecord {
	rec := domain.UserRecord{
		ID:         u.ID,
		Email:      u.Email,
		GivenName:  u.FirstName,
		FamilyName: u.LastName,
		Username:   u.Username,
		Enabled:    u.Enabled,
		Roles:      domain.ParseRoles(u.RealmRoles),
	}
	if u.CreatedTimestamp != 0 {
		createdAt := time.UnixMilli(u.CreatedTimestamp).UTC()
		rec.CreatedAt = &createdAt
	}
	return rec
}

// ListAll returns every user in the realm, exhausting pagination up to
// the safety cap.
func (c *Client) ListAll(ctx context.Context) ([]domain.UserRecord, error) {
	records := make([]domain.UserRecord, 0, pageSize)
	for first := 0; first < c.maxUsers; first += pageSize {
		max := pageSize
		if remaining := c.maxUsers - first; remaining < max {
			max = remaining
		}

		var page []userRepresentation
		q := url.Values{
			"first": {fmt.Sprint(first)},
			"max":   {fmt.Sprint(max)},
		}
		if err := c.get(ctx, "/users?"+q.Encode(), &page); err != nil {
			return nil, err
		}

		for _, rep := range page {
			records = append(records, rep.record())
		}
		if len(page) < max {
			break
		}
	}
	return records, nil
}

// GetByID returns a single user, or directory.ErrNotFound.
func (c *Client) GetByID(ctx context.Context, id string) (*domain.UserRecord, error) {
	var rep userRepresentation
	if err := c.get(ctx, "/users/"+url.PathEscape(id), &rep); err != nil {
		return nil, err
	}
	rec := rep.record()
	return &rec, nil
}

// FilterByAttribute searches users server-side by a custom attribute
// (Keycloak's q=key:value query).
func (c *Client) FilterByAttribute(ctx context.Context, key, value string) ([]domain.UserRecord, error) {
	q := url.Values{
		"q":   {key + ":" + value},
		"max": {fmt.Sprint(c.maxUsers)},
	}
	var page []userRepresentation
	if err := c.get(ctx, "/users?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	records := make([]domain.UserRecord, 0, len(page))
	for _, rep := range page {
		records = append(records, rep.record())
	}
	return records, nil
}

// EstimatedPopulation returns the realm's user count, the cheap oracle
// the sync engine compares against the cache count.
func (c *Client) EstimatedPopulation(ctx context.Context) (int, error) {
	if !c.populationOracle {
		return 0, directory.ErrPopulationUnsupported
	}
	var count int
	if err := c.get(ctx, "/users/count", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// get performs an authenticated GET and decodes the JSON reply into out.
// A 401 invalidates the credential and retries once with a fresh one.
func (c *Client) get(ctx context.Context, path string, out any) error {
	retried := false
	for {
		cred, err := c.creds.Ensure(ctx)
		if err != nil {
			return err
		}

		status, body, err := c.fetch(ctx, path, cred.Token)
		if err != nil {
			return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
		}

		switch {
		case status == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%w: malformed response: %v", directory.ErrUnavailable, err)
			}
			return nil
		case status == http.StatusNotFound:
			return directory.ErrNotFound
		case status == http.StatusUnauthorized && !retried:
			c.creds.Invalidate()
			retried = true
		default:
			return fmt.Errorf("%w: status %d", directory.ErrUnavailable, status)
		}
	}
}

func (c *Client) fetch(ctx context.Context, path, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adminBase+path, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

var _ directory.Client = (*Client)(nil)
