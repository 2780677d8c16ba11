package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes surfaced to callers. The transport layer maps these to
// HTTP statuses; the service layer only deals in codes.
const (
	UserNotFound           = "user_not_found"
	BadRequest             = "bad_request"
	AuthBackendUnavailable = "auth_backend_unavailable"
	DirectoryUnavailable   = "directory_unavailable"
)

// ServiceError is a typed failure returned by the resolution engine.
type ServiceError struct {
	Code        string   `json:"error"`
	Description string   `json:"error_description,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
	cause       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *ServiceError) Unwrap() error {
	return e.cause
}

// Common error constructors

// NewNotFound reports that the directory has no record for the given
// IDs. At least one ID is always named in the description.
func NewNotFound(ids ...string) *ServiceError {
	desc := "user not found"
	if len(ids) == 1 {
		desc = fmt.Sprintf("user with ID %s not found", ids[0])
	} else if len(ids) > 1 {
		desc = fmt.Sprintf("users with IDs %s not found", strings.Join(ids, ", "))
	}
	return &ServiceError{
		Code:        UserNotFound,
		Description: desc,
		UserIDs:     ids,
	}
}

func NewBadRequest(description string) *ServiceError {
	return &ServiceError{
		Code:        BadRequest,
		Description: description,
	}
}

func NewAuthBackendUnavailable(cause error) *ServiceError {
	return &ServiceError{
		Code:        AuthBackendUnavailable,
		Description: "failed to authenticate against the identity directory",
		cause:       cause,
	}
}

func NewDirectoryUnavailable(cause error) *ServiceError {
	return &ServiceError{
		Code:        DirectoryUnavailable,
		Description: "identity directory is unavailable",
		cause:       cause,
	}
}

func hasCode(err error, code string) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}

func IsNotFound(err error) bool { return hasCode(err, UserNotFound) }

func IsBadRequest(err error) bool { return hasCode(err, BadRequest) }

func IsAuthBackendUnavailable(err error) bool { return hasCode(err, AuthBackendUnavailable) }

func IsDirectoryUnavailable(err error) bool { return hasCode(err, DirectoryUnavailable) }
