// AngelaMos | 2026
// dto.go

package auth

import (
	"time"
)

const (
	GrantTypeRefreshToken = "refresh_token"
	TokenTypeBearer       = "Bearer"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=128"`
}

// RefreshRequest is the form of POST /oauth/access_token.
type RefreshRequest struct {
	GrantType    string `json:"grant_type"    validate:"required,oneof=refresh_token"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// BearerResponse is returned by login and refresh.
type BearerResponse struct {
	Username     string   `json:"username"`
	Roles        []string `json:"roles"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}
