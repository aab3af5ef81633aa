// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pedrozc90/tenantusers/internal/core"
)

const ClaimsKey contextKey = "jwt_claims"

// ErrNoAuthenticationContext is returned by the Current* lookups when the
// context does not come from a verified request.
var ErrNoAuthenticationContext = fmt.Errorf(
	"no authentication context: %w",
	core.ErrUnauthorized,
)

type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*Claims, error)
}

const ProfileMaster = "MASTER"

// Claims is the verified identity of a request. TenantID is 0 when the
// user has no tenant.
type Claims struct {
	UserID    int64
	TenantID  int64
	Username  string
	Profile   string
	TokenID   string
	ExpiresAt time.Time
}

func (c *Claims) IsMaster() bool {
	return c.Profile == ProfileMaster
}

func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)

			if token == "" {
				core.JSONError(
					w,
					core.UnauthorizedError("missing authorization token"),
				)
				return
			}

			claims, err := verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				handleAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireProfile must run after Authenticator.
func RequireProfile(profiles ...string) func(http.Handler) http.Handler {
	profileSet := make(map[string]struct{}, len(profiles))
	for _, profile := range profiles {
		profileSet[profile] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := CurrentClaims(r.Context())
			if err != nil {
				core.JSONError(
					w,
					core.UnauthorizedError("authentication required"),
				)
				return
			}

			if _, ok := profileSet[claims.Profile]; !ok {
				core.JSONError(
					w,
					core.ForbiddenError("insufficient permissions"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func RequireMaster(next http.Handler) http.Handler {
	return RequireProfile(ProfileMaster)(next)
}

func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func handleAuthError(w http.ResponseWriter, err error) {
	if core.IsAppError(err) {
		core.JSONError(w, err)
		return
	}

	switch {
	case errors.Is(err, core.ErrTokenExpired):
		core.JSONError(w, core.TokenExpiredError())
	case errors.Is(err, core.ErrTokenRevoked):
		core.JSONError(w, core.TokenRevokedError())
	default:
		core.JSONError(w, core.TokenInvalidError())
	}
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

func CurrentClaims(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	if !ok || claims == nil {
		return nil, ErrNoAuthenticationContext
	}
	return claims, nil
}

func CurrentUserID(ctx context.Context) (int64, error) {
	claims, err := CurrentClaims(ctx)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func CurrentTenantID(ctx context.Context) (int64, error) {
	claims, err := CurrentClaims(ctx)
	if err != nil {
		return 0, err
	}
	return claims.TenantID, nil
}
