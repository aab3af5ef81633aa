// AngelaMos | 2026
// handler_test.go

package tenant

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/middleware"
)

type memRepo struct {
	mu      sync.Mutex
	tenants []Tenant
}

func (m *memRepo) Create(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Name == t.Name {
			return fmt.Errorf("create tenant: %w", core.ErrDuplicateKey)
		}
	}
	t.ID = int64(len(m.tenants) + 1)
	t.Version = 1
	m.tenants = append(m.tenants, *t)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get tenant: %w", core.ErrNotFound)
}

func (m *memRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := m.GetByID(ctx, id)
	return err == nil, nil
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]Tenant, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.tenants)
	start := min(offset, total)
	end := min(start+limit, total)
	return append([]Tenant(nil), m.tenants[start:end]...), total, nil
}

func asProfile(profile string, tenantID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithClaims(r.Context(), &middleware.Claims{
				UserID: 1, TenantID: tenantID, Username: "u", Profile: profile,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestRouter(profile string, tenantID int64) http.Handler {
	repo := &memRepo{tenants: []Tenant{
		{ID: 1, Name: "acme", Version: 1},
		{ID: 2, Name: "initech", Version: 1},
	}}
	r := chi.NewRouter()
	NewHandler(NewService(repo)).RegisterRoutes(
		r,
		asProfile(profile, tenantID),
		middleware.RequireMaster,
	)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetTenant(t *testing.T) {
	h := newTestRouter("NORMAL", 1)

	rec := serve(h, http.MethodGet, "/tenants/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"acme"`)

	rec = serve(h, http.MethodGet, "/tenants/x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	master := newTestRouter("MASTER", 0)
	rec = serve(master, http.MethodGet, "/tenants/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"initech"`)

	rec = serve(master, http.MethodGet, "/tenants/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTenantHidesOtherTenants(t *testing.T) {
	h := newTestRouter("NORMAL", 1)

	rec := serve(h, http.MethodGet, "/tenants/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "initech")

	tenantless := newTestRouter("NORMAL", 0)
	rec = serve(tenantless, http.MethodGet, "/tenants/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantAdminRoutesRequireMaster(t *testing.T) {
	h := newTestRouter("NORMAL", 1)

	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/tenants", "").Code)
	assert.Equal(t, http.StatusForbidden,
		serve(h, http.MethodPost, "/tenants", `{"name":"globex"}`).Code)
}

func TestCreateAndListTenants(t *testing.T) {
	h := newTestRouter("MASTER", 0)

	rec := serve(h, http.MethodPost, "/tenants", `{"name":"  globex "}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/tenants/3", rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), `"name":"globex"`)

	rec = serve(h, http.MethodPost, "/tenants", `{"name":"acme"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(h, http.MethodPost, "/tenants", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/tenants?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":3`)
	assert.Contains(t, rec.Body.String(), `"acme"`)
	assert.NotContains(t, rec.Body.String(), `"globex"`)
}
