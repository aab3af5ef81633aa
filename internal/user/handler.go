// AngelaMos | 2026
// handler.go

package user

import (
	"encoding/json"
	"errors"
	"fmt"
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

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/users", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/", h.Fetch)
		r.Post("/", h.Register)
		r.Put("/", h.Update)
		r.Get("/{userID}", h.Get)
		r.Patch("/{userID}/activate", h.Activate)
		r.Patch("/{userID}/deactivate", h.Deactivate)
		r.Delete("/{userID}", h.Delete)
	})
}

func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	params := ListUsersParams{
		Page:  parseIntQuery(r, "page", 1),
		RPP:   parseIntQuery(r, "rpp", defaultRPP),
		Query: r.URL.Query().Get("q"),
	}

	page, err := h.service.Fetch(r.Context(), params, requester)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, page)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req, requester)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", location(user.ID))
	core.Created(w, ToUserResponse(user))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Update(r.Context(), req, requester)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", location(user.ID))
	core.OK(w, ToUserResponse(user))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Find(r.Context(), id, requester)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToUserResponse(user))
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Activate(r.Context(), id, requester); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Deactivate(r.Context(), id, requester); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterFrom(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, requester); err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, MessageResponse{
		Message: fmt.Sprintf("User (id: %d) successfully deleted.", id),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.JSONError(w, core.ValidationError(core.FormatValidationError(err)))
		return false
	}

	return true
}

func requesterFrom(w http.ResponseWriter, r *http.Request) (Requester, bool) {
	claims, err := middleware.CurrentClaims(r.Context())
	if err != nil {
		core.Unauthorized(w, "")
		return Requester{}, false
	}

	return Requester{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Profile:  Profile(claims.Profile),
	}, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case core.IsAppError(err):
		core.JSONError(w, err)
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	default:
		core.InternalServerError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id < 1 {
		core.NotFound(w, "user")
		return 0, false
	}
	return id, true
}

func location(id int64) string {
	return "/users/" + strconv.FormatInt(id, 10)
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
