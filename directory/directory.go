// Package directory abstracts the external authoritative identity
// directory. The cache layer is strictly a performance optimization on
// top of it; whatever a Client returns is the source of truth.
package directory

import (
	"context"
	"errors"

	"github.com/CorsairOps/user-service/domain"
)

var (
	// ErrNotFound reports an ID unknown to the directory.
	ErrNotFound = errors.New("directory: user not found")

	// ErrUnavailable reports a network failure, 5xx, or malformed
	// response from the directory.
	ErrUnavailable = errors.New("directory: unavailable")

	// ErrPopulationUnsupported reports that the backend offers no
	// population estimate. Callers must then treat any cache as stale
	// for full listings.
	ErrPopulationUnsupported = errors.New("directory: population estimate unsupported")
)

// Client is the adapter over an identity directory backend.
type Client interface {
	// ListAll returns every user record. Backends that paginate are
	// exhausted internally, bounded by the adapter's safety cap.
	ListAll(ctx context.Context) ([]domain.UserRecord, error)

	// GetByID returns the record for id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.UserRecord, error)

	// FilterByAttribute returns records matching a server-side
	// attribute search, for backends that support one.
	FilterByAttribute(ctx context.Context, key, value string) ([]domain.UserRecord, error)

	// EstimatedPopulation returns the backend's user count, or
	// ErrPopulationUnsupported.
	EstimatedPopulation(ctx context.Context) (int, error)
}
