// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/middleware"
)

type Handler struct {
	service        *Service
	validator      *validator.Validate
	hideLockStatus bool
}

// NewHandler builds the auth endpoints. With hideLockStatus set, a locked
// account is reported exactly like an unknown user.
func NewHandler(service *Service, hideLockStatus bool) *Handler {
	return &Handler{
		service:        service,
		validator:      validator.New(validator.WithRequiredStructEnabled()),
		hideLockStatus: hideLockStatus,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	loginLimiter func(http.Handler) http.Handler,
) {
	r.With(loginLimiter).Post("/login", h.Login)
	r.With(loginLimiter).Post("/oauth/access_token", h.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(authenticator)
		r.Post("/logout", h.Logout)
		r.Post("/logout-all", h.LogoutAll)
		r.Get("/sessions", h.GetSessions)
		r.Delete("/sessions/{sessionID}", h.RevokeSession)
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.JSONError(w, core.ValidationError(core.FormatValidationError(err)))
		return
	}

	resp, err := h.service.Login(
		r.Context(),
		req,
		r.UserAgent(),
		extractIPAddress(r),
	)
	if err != nil {
		h.writeCredentialError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) writeCredentialError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountLocked) && !h.hideLockStatus:
		core.JSONError(w, core.NewAppError(
			ErrAccountLocked,
			"account is locked",
			http.StatusUnauthorized,
			"ACCOUNT_LOCKED",
		))
	case errors.Is(err, ErrAccountLocked), errors.Is(err, ErrUserNotFound):
		core.JSONError(w, core.NewAppError(
			ErrUserNotFound,
			"invalid username or password",
			http.StatusUnauthorized,
			"USER_NOT_FOUND",
		))
	default:
		core.InternalServerError(w, err)
	}
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.JSONError(w, core.ValidationError(core.FormatValidationError(err)))
		return
	}

	resp, err := h.service.Refresh(
		r.Context(),
		req.RefreshToken,
		r.UserAgent(),
		extractIPAddress(r),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenReuse):
			core.JSONError(w, core.NewAppError(
				core.ErrTokenRevoked,
				"security alert: token reuse detected, all sessions revoked",
				http.StatusUnauthorized,
				"TOKEN_REUSE_DETECTED",
			))
		case errors.Is(err, ErrAccountLocked):
			h.writeCredentialError(w, err)
		case errors.Is(err, core.ErrTokenExpired):
			core.JSONError(w, core.TokenExpiredError())
		case errors.Is(err, core.ErrTokenRevoked):
			core.JSONError(w, core.TokenRevokedError())
		case errors.Is(err, core.ErrTokenInvalid):
			core.JSONError(w, core.TokenInvalidError())
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.CurrentClaims(r.Context())
	if err != nil {
		core.Unauthorized(w, "")
		return
	}

	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil &&
		!errors.Is(err, io.EOF) {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken, claims); err != nil {
		if errors.Is(err, core.ErrForbidden) {
			core.Forbidden(w, "cannot revoke another user's token")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.CurrentClaims(r.Context())
	if err != nil {
		core.Unauthorized(w, "")
		return
	}

	if err := h.service.LogoutAll(r.Context(), claims); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.CurrentUserID(r.Context())
	if err != nil {
		core.Unauthorized(w, "")
		return
	}

	sessions, err := h.service.GetActiveSessions(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, SessionsResponse{Sessions: sessions})
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.CurrentUserID(r.Context())
	if err != nil {
		core.Unauthorized(w, "")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := uuid.Parse(sessionID); err != nil {
		core.NotFound(w, "session")
		return
	}

	if err := h.service.RevokeSession(r.Context(), userID, sessionID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "session")
			return
		}
		if errors.Is(err, core.ErrForbidden) {
			core.Forbidden(w, "cannot revoke another user's session")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}

func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[len(ips)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
