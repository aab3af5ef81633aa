// AngelaMos | 2026
// dto.go

package user

import (
	"time"
)

const (
	defaultRPP = 15
	maxRPP     = 100
)

type RegisterRequest struct {
	Email           string  `json:"email"            validate:"required,email,max=255"`
	Username        string  `json:"username"         validate:"required,min=1,max=32"`
	Password        string  `json:"password"         validate:"required,max=128"`
	PasswordConfirm string  `json:"password_confirm" validate:"required"`
	Profile         Profile `json:"profile,omitempty" validate:"omitempty,oneof=NORMAL MASTER"`
	TenantID        *int64  `json:"tenant_id,omitempty" validate:"omitempty,gt=0"`
}

// UpdateRequest replaces the mutable fields of an existing user. Audit is
// optional; when present its version must match the stored one.
type UpdateRequest struct {
	ID       int64         `json:"id"              validate:"required,gt=0"`
	Email    string        `json:"email"           validate:"required,email,max=255"`
	Username string        `json:"username"        validate:"required,min=1,max=32"`
	Profile  Profile       `json:"profile"         validate:"required,oneof=NORMAL MASTER"`
	Active   *bool         `json:"active"          validate:"required"`
	Audit    *AuditRequest `json:"audit,omitempty"`
}

type AuditRequest struct {
	Version int `json:"version" validate:"gt=0"`
}

type AuditResponse struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// UserResponse is the only outward view of a User and has no password field.
type UserResponse struct {
	ID       int64         `json:"id"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
	Profile  Profile       `json:"profile"`
	Active   bool          `json:"active"`
	TenantID *int64        `json:"tenant_id,omitempty"`
	Audit    AuditResponse `json:"audit"`
}

type Page[T any] struct {
	Page  int  `json:"page"`
	RPP   int  `json:"rpp"`
	Total int  `json:"total"`
	Next  bool `json:"next"`
	Prev  bool `json:"prev"`
	List  []T  `json:"list"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ListUsersParams filters a listing. When Scoped is set only users of
// TenantID are returned, and a zero TenantID means users without a tenant.
type ListUsersParams struct {
	Page     int
	RPP      int
	Query    string
	Scoped   bool
	TenantID int64
}

func (p *ListUsersParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.RPP < 1 {
		p.RPP = defaultRPP
	}
	if p.RPP > maxRPP {
		p.RPP = maxRPP
	}
}

func (p *ListUsersParams) Offset() int {
	return (p.Page - 1) * p.RPP
}

func NewPage[T any](list []T, page, rpp, total int) Page[T] {
	if list == nil {
		list = []T{}
	}
	return Page[T]{
		Page:  page,
		RPP:   rpp,
		Total: total,
		Next:  page*rpp < total,
		Prev:  page > 1,
		List:  list,
	}
}

func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Profile:  u.Profile,
		Active:   u.Active,
		TenantID: u.TenantID,
		Audit: AuditResponse{
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
			Version:   u.Version,
		},
	}
}

func ToUserResponseList(users []User) []UserResponse {
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, ToUserResponse(&users[i]))
	}
	return responses
}
