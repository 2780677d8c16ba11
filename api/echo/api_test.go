package echo_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echolib "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	userapi "github.com/CorsairOps/user-service/api/echo"
	"github.com/CorsairOps/user-service/cache"
	"github.com/CorsairOps/user-service/directory"
	"github.com/CorsairOps/user-service/domain"
	"github.com/CorsairOps/user-service/services"
)

// staticDirectory serves a fixed user set; enough for transport tests.
type staticDirectory struct {
	users map[string]domain.UserRecord
}

func (d *staticDirectory) ListAll(_ context.Context) ([]domain.UserRecord, error) {
	records := make([]domain.UserRecord, 0, len(d.users))
	for _, rec := range d.users {
		records = append(records, rec)
	}
	return records, nil
}

func (d *staticDirectory) GetByID(_ context.Context, id string) (*domain.UserRecord, error) {
	rec, ok := d.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &rec, nil
}

func (d *staticDirectory) FilterByAttribute(_ context.Context, _, _ string) ([]domain.UserRecord, error) {
	return nil, nil
}

func (d *staticDirectory) EstimatedPopulation(_ context.Context) (int, error) {
	return len(d.users), nil
}

func newTestAPI(t *testing.T) *echolib.Echo {
	t.Helper()
	store := cache.NewMemoryUserStore(time.Minute)
	t.Cleanup(store.Stop)

	dir := &staticDirectory{users: map[string]domain.UserRecord{
		"a": {ID: "a", Email: "a@corsairops.io", Enabled: true},
		"b": {ID: "b", Email: "b@corsairops.io", Enabled: true},
	}}

	e := echolib.New()
	userapi.NewUserAPI(services.NewUserService(store, dir)).RegisterRoutes(e)
	return e
}

func doRequest(e *echolib.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListUsersHandler(t *testing.T) {
	e := newTestAPI(t)

	rec := doRequest(e, "/api/users")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []domain.UserRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestUserByIDHandler(t *testing.T) {
	e := newTestAPI(t)

	rec := doRequest(e, "/api/users/a")
	require.Equal(t, http.StatusOK, rec.Code)

	var record domain.UserRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "a", record.ID)

	t.Run("NotFound", func(t *testing.T) {
		rec := doRequest(e, "/api/users/zz")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "zz")
	})
}

func TestUsersByIDsHandler(t *testing.T) {
	e := newTestAPI(t)

	rec := doRequest(e, "/api/users/ids?ids=a,b")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []domain.UserRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	t.Run("MissingIDsParam", func(t *testing.T) {
		rec := doRequest(e, "/api/users/ids")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("AllowEmpty", func(t *testing.T) {
		rec := doRequest(e, "/api/users/ids?ids=a,zz&allowEmpty=true")
		require.Equal(t, http.StatusOK, rec.Code)

		var records []domain.UserRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "a", records[0].ID)
	})

	t.Run("UnknownIDStrict", func(t *testing.T) {
		rec := doRequest(e, "/api/users/ids?ids=a,zz")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "zz")
	})

	t.Run("BadAllowEmpty", func(t *testing.T) {
		rec := doRequest(e, "/api/users/ids?ids=a&allowEmpty=maybe")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	e := newTestAPI(t)

	rec := doRequest(e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}
