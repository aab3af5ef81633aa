// AngelaMos | 2026
// service.go

package index

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/tenant"
	"github.com/pedrozc90/tenantusers/internal/user"
)

type UserGetter interface {
	Get(ctx context.Context, id int64) (*user.User, error)
}

type TenantGetter interface {
	Get(ctx context.Context, id int64) (*tenant.Tenant, error)
}

// Context is the caller's view of who they are and where they belong.
type Context struct {
	User   *user.UserResponse     `json:"user,omitempty"`
	Tenant *tenant.TenantResponse `json:"tenant,omitempty"`
}

type Service struct {
	users   UserGetter
	tenants TenantGetter
}

func NewService(users UserGetter, tenants TenantGetter) *Service {
	return &Service{
		users:   users,
		tenants: tenants,
	}
}

// BuildContext looks the user and tenant up independently. A record that
// no longer exists leaves its field nil; a tenantID of 0 skips the lookup.
func (s *Service) BuildContext(
	ctx context.Context,
	userID, tenantID int64,
) (*Context, error) {
	ctx, span := core.StartSpan(ctx, "index.BuildContext",
		attribute.Int64("user.id", userID),
		attribute.Int64("tenant.id", tenantID),
	)
	defer span.End()

	result := &Context{}

	u, err := s.users.Get(ctx, userID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.AddSpanEvent(ctx, "context.user_missing")
	case err != nil:
		core.SetSpanError(ctx, err)
		return nil, fmt.Errorf("build context: %w", err)
	default:
		resp := user.ToUserResponse(u)
		result.User = &resp
	}

	if tenantID == 0 {
		return result, nil
	}

	t, err := s.tenants.Get(ctx, tenantID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.AddSpanEvent(ctx, "context.tenant_missing")
	case err != nil:
		core.SetSpanError(ctx, err)
		return nil, fmt.Errorf("build context: %w", err)
	default:
		resp := tenant.ToTenantResponse(t)
		result.Tenant = &resp
	}

	return result, nil
}
