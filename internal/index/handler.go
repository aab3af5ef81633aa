// AngelaMos | 2026
// handler.go

package index

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/middleware"
)

type PingResponse struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type Handler struct {
	service *Service
	name    string
	version string
}

func NewHandler(service *Service, name, version string) *Handler {
	return &Handler{
		service: service,
		name:    name,
		version: version,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Get("/", h.Index)
	r.Get("/ping", h.Ping)

	r.Group(func(r chi.Router) {
		r.Use(authenticator)
		r.Get("/context", h.Context)
		r.Get("/secured", h.Secured)
	})
}

func (h *Handler) Index(w http.ResponseWriter, _ *http.Request) {
	core.Text(w, "sanity check")
}

func (h *Handler) Ping(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, PingResponse{
		Name:      h.name,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.CurrentClaims(r.Context())
	if err != nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	result, err := h.service.BuildContext(r.Context(), claims.UserID, claims.TenantID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, result)
}

// Secured answers with the principal's username.
func (h *Handler) Secured(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.CurrentClaims(r.Context())
	if err != nil {
		core.JSONError(w, core.UnauthorizedError(""))
		return
	}

	core.Text(w, claims.Username)
}
