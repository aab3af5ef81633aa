// AngelaMos | 2026
// handler.go

package tenant

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts /tenants. A bearer may read its own tenant, a
// MASTER any tenant; listing and creation need masterOnly.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, masterOnly func(http.Handler) http.Handler,
) {
	r.Route("/tenants", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/{tenantID}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(masterOnly)
			r.Get("/", h.List)
			r.Post("/", h.Create)
		})
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || id < 1 {
		core.NotFound(w, "tenant")
		return
	}

	claims, err := middleware.CurrentClaims(r.Context())
	if err != nil {
		core.Unauthorized(w, "")
		return
	}
	if !claims.IsMaster() && claims.TenantID != id {
		core.NotFound(w, "tenant")
		return
	}

	tenant, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "tenant")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToTenantResponse(tenant))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultLimit)
	offset := parseIntQuery(r, "offset", 0)

	tenants, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ListResponse{
		Tenants: ToTenantResponseList(tenants),
		Total:   total,
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.JSONError(w, core.ValidationError(core.FormatValidationError(err)))
		return
	}

	tenant, err := h.service.Create(r.Context(), req)
	if err != nil {
		if core.IsAppError(err) {
			core.JSONError(w, err)
			return
		}
		core.InternalServerError(w, err)
		return
	}

	w.Header().Set("Location", "/tenants/"+strconv.FormatInt(tenant.ID, 10))
	core.Created(w, ToTenantResponse(tenant))
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return parsed
}
