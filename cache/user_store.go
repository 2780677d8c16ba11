package cache

import (
	"context"
	"errors"
	"time"

	"github.com/CorsairOps/user-service/domain"
)

// SchemaVersion tags the cache keyspace. Bump it whenever CachedEntry
// gains or loses a field: the old keyspace is orphaned (its entries die
// by TTL), which acts as the required cache-wide invalidation without a
// flush.
const SchemaVersion = "v1"

// ErrEntryNotFound is returned when an ID has no live cache entry.
var ErrEntryNotFound = errors.New("cache: entry not found")

// CachedEntry is the persisted cache projection of a domain.UserRecord,
// keyed by the user ID. Expiry is enforced by the store itself, not by
// the caller.
type CachedEntry struct {
	ID         string   `json:"id"`
	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Username   string   `json:"username,omitempty"`
	Enabled    bool     `json:"enabled"`
	// CreatedAt is epoch milliseconds; zero when the backend did not report it.
	CreatedAt int64    `json:"created_at,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// NewCachedEntry projects a UserRecord into its cache representation.
func NewCachedEntry(rec domain.UserRecord) *CachedEntry {
	entry := &CachedEntry{
		ID:         rec.ID,
		Email:      rec.Email,
		GivenName:  rec.GivenName,
		FamilyName: rec.FamilyName,
		Username:   rec.Username,
		Enabled:    rec.Enabled,
	}
	if rec.CreatedAt != nil {
		entry.CreatedAt = rec.CreatedAt.UnixMilli()
	}
	for _, role := range rec.Roles {
		entry.Roles = append(entry.Roles, string(role))
	}
	return entry
}

// Record rebuilds the UserRecord this entry was projected from.
func (e *CachedEntry) Record() domain.UserRecord {
	rec := domain.UserRecord{
		ID:         e.ID,
		Email:      e.Email,
		GivenName:  e.GivenName,
		FamilyName: e.FamilyName,
		Username:   e.Username,
		Enabled:    e.Enabled,
		Roles:      domain.ParseRoles(e.Roles),
	}
	if e.CreatedAt != 0 {
		createdAt := time.UnixMilli(e.CreatedAt).UTC()
		rec.CreatedAt = &createdAt
	}
	return rec
}

// UserStore is the key-value cache of user records. Implementations own
// TTL enforcement: an expired entry must never be readable. All writes
// are independent per-ID upserts; last write wins per key.
type UserStore interface {
	// GetOne returns the live entry for id, or ErrEntryNotFound.
	GetOne(ctx context.Context, id string) (*CachedEntry, error)

	// GetMany returns the subset of ids that have live entries, keyed by ID.
	// Absent IDs are simply missing from the map, not an error.
	GetMany(ctx context.Context, ids []string) (map[string]*CachedEntry, error)

	// PutMany upserts entries, resetting each entry's TTL.
	PutMany(ctx context.Context, entries []*CachedEntry) error

	// All returns every live entry.
	All(ctx context.Context) ([]*CachedEntry, error)

	// Count returns the number of currently live entries.
	Count(ctx context.Context) (int, error)
}
