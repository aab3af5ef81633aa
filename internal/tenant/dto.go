// AngelaMos | 2026
// dto.go

package tenant

import (
	"time"
)

type CreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type AuditResponse struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type TenantResponse struct {
	ID    int64         `json:"id"`
	Name  string        `json:"name"`
	Audit AuditResponse `json:"audit"`
}

type ListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
	Total   int              `json:"total"`
}

func ToTenantResponse(t *Tenant) TenantResponse {
	return TenantResponse{
		ID:   t.ID,
		Name: t.Name,
		Audit: AuditResponse{
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
			Version:   t.Version,
		},
	}
}

func ToTenantResponseList(tenants []Tenant) []TenantResponse {
	responses := make([]TenantResponse, 0, len(tenants))
	for i := range tenants {
		responses = append(responses, ToTenantResponse(&tenants[i]))
	}
	return responses
}
