// Package echo exposes the resolver over HTTP. It is deliberately thin:
// parameter parsing, service calls, and a taxonomy-to-status mapping.
package echo

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	apperrors "github.com/CorsairOps/user-service/errors"
	"github.com/CorsairOps/user-service/services"
)

// UserAPI struct to hold dependencies.
type UserAPI struct {
	users *services.UserService
}

// NewUserAPI initializes the user API.
func NewUserAPI(users *services.UserService) *UserAPI {
	return &UserAPI{users: users}
}

// RegisterRoutes registers the user routes.
func (ua *UserAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/users", ua.ListUsersHandler)
	e.GET("/api/users/ids", ua.UsersByIDsHandler)
	e.GET("/api/users/:id", ua.UserByIDHandler)
	e.GET("/healthz", ua.HealthHandler)
}

// ListUsersHandler returns every user, cache permitting without a
// directory round trip.
func (ua *UserAPI) ListUsersHandler(c echo.Context) error {
	records, err := ua.users.ListAllUsers(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// UsersByIDsHandler resolves a comma-separated ID set, e.g.
// /api/users/ids?ids=a,b,c&allowEmpty=true.
func (ua *UserAPI) UsersByIDsHandler(c echo.Context) error {
	var ids []string
	if raw := c.QueryParam("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}

	allowEmpty := false
	if raw := c.QueryParam("allowEmpty"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return writeError(c, apperrors.NewBadRequest("allowEmpty must be a boolean"))
		}
		allowEmpty = parsed
	}

	records, err := ua.users.GetUsersByIDs(c.Request().Context(), ids, allowEmpty)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// UserByIDHandler resolves a single user.
func (ua *UserAPI) UserByIDHandler(c echo.Context) error {
	rec, err := ua.users.GetUserByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// HealthHandler reports process liveness.
func (ua *UserAPI) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps the failure taxonomy to HTTP statuses. Anything
// untyped is a 500, which should not happen on the read path.
func writeError(c echo.Context, err error) error {
	var svcErr *apperrors.ServiceError
	if !errors.As(err, &svcErr) {
		log.Ctx(c.Request().Context()).Error().Err(err).Msg("unexpected resolver failure")
		return c.JSON(http.StatusInternalServerError, apperrors.NewDirectoryUnavailable(nil))
	}

	status := http.StatusInternalServerError
	switch svcErr.Code {
	case apperrors.UserNotFound:
		status = http.StatusNotFound
	case apperrors.BadRequest:
		status = http.StatusBadRequest
	case apperrors.AuthBackendUnavailable, apperrors.DirectoryUnavailable:
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, svcErr)
}
