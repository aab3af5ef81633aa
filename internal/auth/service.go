// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/middleware"
)

var (
	// ErrUserNotFound covers both an unknown username and a wrong password.
	ErrUserNotFound  = fmt.Errorf("user not found: %w", core.ErrUnauthorized)
	ErrAccountLocked = fmt.Errorf("account locked: %w", core.ErrUnauthorized)
	ErrTokenReuse    = fmt.Errorf("token reuse detected: %w", core.ErrTokenRevoked)
)

type UserInfo struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Profile      string
	Active       bool
	TenantID     int64
}

type UserProvider interface {
	GetByUsername(ctx context.Context, username string) (*UserInfo, error)
	GetByID(ctx context.Context, id int64) (*UserInfo, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// AuthResult is the outcome of a successful credential check.
type AuthResult struct {
	User   *UserInfo
	Claims Claims
}

type Service struct {
	repo      Repository
	jwt       *JWTManager
	users     UserProvider
	hasher    *core.PasswordHasher
	blacklist Blacklist
}

func NewService(
	repo Repository,
	jwt *JWTManager,
	users UserProvider,
	hasher *core.PasswordHasher,
	blacklist Blacklist,
) *Service {
	return &Service{
		repo:      repo,
		jwt:       jwt,
		users:     users,
		hasher:    hasher,
		blacklist: blacklist,
	}
}

// Authenticate checks a username/password pair. Lookup and digest check
// fail the same way, and an unknown user still pays for one verification.
func (s *Service) Authenticate(
	ctx context.Context,
	username, password string,
) (*AuthResult, error) {
	ctx, span := core.StartSpan(ctx, "auth.Authenticate",
		attribute.String("auth.username", username),
	)
	defer span.End()

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		core.SetSpanError(ctx, err)
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	var storedHash *string
	if user != nil {
		storedHash = &user.PasswordHash
	}

	valid, newHash, err := s.hasher.VerifyTimingSafe(password, storedHash)
	if err != nil {
		slog.Warn("stored password digest unreadable",
			"username", username,
			"error", err,
		)
		valid = false
	}

	if user == nil || !valid {
		slog.Info("authentication failed", "username", username)
		return nil, ErrUserNotFound
	}

	if !user.Active {
		slog.Info("authentication refused for locked account",
			"user_id", user.ID,
		)
		return nil, ErrAccountLocked
	}

	if newHash != "" {
		if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
			slog.Warn("password rehash failed", "user_id", user.ID, "error", err)
		} else {
			core.AddSpanEvent(ctx, "password.rehashed")
		}
	}

	return &AuthResult{
		User:   user,
		Claims: claimsFor(user),
	}, nil
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	userAgent, ipAddress string,
) (*BearerResponse, error) {
	result, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, result.User, userAgent, ipAddress, nil)
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken, userAgent, ipAddress string,
) (*BearerResponse, error) {
	storedToken, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	if storedToken.IsUsed {
		s.revokeFamily(ctx, storedToken)
		return nil, ErrTokenReuse
	}

	if !storedToken.IsValid() {
		if storedToken.IsRevoked() {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
		}
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	}

	user, err := s.users.GetByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.Active {
		return nil, ErrAccountLocked
	}

	resp, err := s.issueTokens(ctx, user, userAgent, ipAddress, storedToken)
	if errors.Is(err, ErrTokenReuse) {
		s.revokeFamily(ctx, storedToken)
	}
	return resp, err
}

// Logout revokes the refresh token, if one is given and belongs to the
// caller, and blacklists the access token the request was made with.
func (s *Service) Logout(
	ctx context.Context,
	refreshToken string,
	claims *middleware.Claims,
) error {
	if refreshToken != "" {
		storedToken, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
		switch {
		case errors.Is(err, core.ErrNotFound):
		case err != nil:
			return fmt.Errorf("find token: %w", err)
		case storedToken.UserID != claims.UserID:
			return fmt.Errorf("logout: %w", core.ErrForbidden)
		default:
			if err := s.repo.RevokeByID(ctx, storedToken.ID); err != nil &&
				!errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("revoke token: %w", err)
			}
		}
	}

	return s.RevokeAccessToken(ctx, claims.TokenID, claims.ExpiresAt)
}

func (s *Service) LogoutAll(
	ctx context.Context,
	claims *middleware.Claims,
) error {
	if err := s.repo.RevokeAllForUser(ctx, claims.UserID); err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}

	return s.RevokeAccessToken(ctx, claims.TokenID, claims.ExpiresAt)
}

func (s *Service) RevokeAccessToken(
	ctx context.Context,
	jti string,
	expiresAt time.Time,
) error {
	if jti == "" {
		return nil
	}

	if err := s.blacklist.Revoke(ctx, jti, time.Until(expiresAt)); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}

	return nil
}

// VerifyAccessToken implements middleware.TokenVerifier. A blacklist
// outage is logged and the token accepted on its signature alone.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.Claims, error) {
	claims, err := s.jwt.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		slog.Warn("blacklist unavailable, accepting token",
			"jti", claims.TokenID,
			"error", err,
		)
		return claims, nil
	}

	if revoked {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	return claims, nil
}

func (s *Service) GetActiveSessions(
	ctx context.Context,
	userID int64,
) ([]SessionInfo, error) {
	tokens, err := s.repo.GetActiveSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, SessionInfo{
			ID:        t.ID,
			UserAgent: t.UserAgent,
			IPAddress: t.IPAddress,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}

	return sessions, nil
}

func (s *Service) RevokeSession(
	ctx context.Context,
	userID int64,
	sessionID string,
) error {
	token, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}

	if token.UserID != userID {
		return fmt.Errorf("revoke session: %w", core.ErrForbidden)
	}

	if err := s.repo.RevokeByID(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

func (s *Service) issueTokens(
	ctx context.Context,
	user *UserInfo,
	userAgent, ipAddress string,
	previous *RefreshToken,
) (*BearerResponse, error) {
	access, err := s.jwt.CreateAccessToken(claimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	familyID := ""
	if previous != nil {
		familyID = previous.FamilyID
	}

	refreshData, err := s.jwt.CreateRefreshToken(familyID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	entity := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}

	err = s.repo.WithinTx(ctx, func(repo Repository) error {
		if err := repo.Create(ctx, entity); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}

		if previous == nil {
			return nil
		}

		if err := repo.MarkAsUsed(ctx, previous.ID, entity.ID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return ErrTokenReuse
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &BearerResponse{
		Username:     user.Username,
		Roles:        []string{user.Profile},
		AccessToken:  access.Token,
		RefreshToken: refreshData.Token,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int(s.jwt.AccessTokenTTL() / time.Second),
	}, nil
}

func (s *Service) revokeFamily(ctx context.Context, token *RefreshToken) {
	slog.Warn("refresh token reuse detected, revoking family",
		"user_id", token.UserID,
		"family_id", token.FamilyID,
	)

	if err := s.repo.RevokeByFamilyID(ctx, token.FamilyID); err != nil {
		slog.Error("revoke token family failed",
			"family_id", token.FamilyID,
			"error", err,
		)
	}
}

func claimsFor(user *UserInfo) Claims {
	return Claims{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Username: user.Username,
		Profile:  user.Profile,
	}
}
