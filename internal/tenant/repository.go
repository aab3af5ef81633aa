// AngelaMos | 2026
// repository.go

package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pedrozc90/tenantusers/internal/core"
)

type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, limit, offset int) ([]Tenant, int, error)
}

const tenantColumns = `id, name, created_at, updated_at, version`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO tenants (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at, version`

	err := r.db.GetContext(ctx, tenant, query, tenant.Name)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create tenant: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create tenant: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id = $1`

	var tenant Tenant
	err := r.db.GetContext(ctx, &tenant, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tenant: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	return &tenant, nil
}

func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check tenant exists: %w", err)
	}

	return exists, nil
}

func (r *repository) List(
	ctx context.Context,
	limit, offset int,
) ([]Tenant, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM tenants`); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		ORDER BY id ASC
		LIMIT $1 OFFSET $2`

	var tenants []Tenant
	if err := r.db.SelectContext(ctx, &tenants, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}

	return tenants, total, nil
}
