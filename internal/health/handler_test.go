// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	healthy   = pingFunc(func(context.Context) error { return nil })
	unhealthy = pingFunc(func(context.Context) error { return errors.New("down") })
)

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	h := NewHandler(
		Dependency{Name: "database", Checker: healthy},
		Dependency{Name: "redis", Checker: healthy},
	)

	rec := serve(h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, "database", resp.Checks[0].Name)
	assert.Equal(t, "redis", resp.Checks[1].Name)
}

func TestReadinessDegraded(t *testing.T) {
	h := NewHandler(
		Dependency{Name: "database", Checker: healthy},
		Dependency{Name: "redis", Checker: unhealthy},
		Dependency{Name: "missing"},
	)

	rec := serve(h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.True(t, resp.Checks[0].Healthy)
	assert.False(t, resp.Checks[1].Healthy)
	assert.Equal(t, "missing checker not configured", resp.Checks[2].Message)
}

func TestShutdownState(t *testing.T) {
	h := NewHandler()
	assert.Equal(t, http.StatusOK, serve(h, "/livez").Code)

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/readyz").Code)
	assert.Equal(t, http.StatusOK, serve(h, "/healthz").Code)

	h.SetShutdown(true)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/healthz").Code)
}

func TestIsProbe(t *testing.T) {
	assert.True(t, IsProbe(httptest.NewRequest(http.MethodGet, "/readyz", nil)))
	assert.False(t, IsProbe(httptest.NewRequest(http.MethodGet, "/users", nil)))
}
