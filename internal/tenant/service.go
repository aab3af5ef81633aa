// AngelaMos | 2026
// service.go

package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pedrozc90/tenantusers/internal/core"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// Exists lets the user service check a requested tenant before assigning it.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.repo.Exists(ctx, id)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Tenant, error) {
	tenant := &Tenant{Name: strings.TrimSpace(req.Name)}
	if tenant.Name == "" {
		return nil, core.ValidationError("name is required")
	}

	if err := s.repo.Create(ctx, tenant); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, core.NewAppError(
				core.ErrDuplicateKey,
				fmt.Sprintf("Tenant %s already exists.", tenant.Name),
				http.StatusConflict,
				"DUPLICATE",
			)
		}
		return nil, err
	}

	slog.Info("tenant created", "tenant_id", tenant.ID, "name", tenant.Name)

	return tenant, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Tenant, int, error) {
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, limit, offset)
}
