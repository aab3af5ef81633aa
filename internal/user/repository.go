// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pedrozc90/tenantusers/internal/core"
)

// Repository is the credential store. All methods are safe for concurrent
// use; row-level atomicity comes from single-statement updates.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
	SetActive(ctx context.Context, user *User, active bool) (bool, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, params ListUsersParams) ([]User, int, error)
	ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error)
	ExistsByUsername(
		ctx context.Context,
		username string,
		excludeID int64,
	) (bool, error)
}

const userColumns = `id, username, email, password_hash, profile, active,
		       tenant_id, created_at, updated_at, version`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (username, email, password_hash, profile, active, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at, version`

	err := r.db.GetContext(ctx, user, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Profile),
		user.Active,
		user.TenantID,
	)
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getOne(ctx, "get user", "id = $1", id)
}

func (r *repository) GetByUsername(
	ctx context.Context,
	username string,
) (*User, error) {
	return r.getOne(ctx, "get user by username", "username = $1", username)
}

func (r *repository) getOne(
	ctx context.Context,
	op, where string,
	arg any,
) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ` + where

	var user User
	err := r.db.GetContext(ctx, &user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

// Update writes the mutable fields only if the stored version still equals
// user.Version, then refreshes user.Audit with the incremented version.
func (r *repository) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, profile = $4, active = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $6
		RETURNING updated_at, version`

	var audit Audit
	err := r.db.GetContext(ctx, &audit, query,
		user.ID,
		user.Username,
		user.Email,
		string(user.Profile),
		user.Active,
		user.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r.missOrConflict(ctx, "update user", user.ID)
	}
	if err != nil {
		if core.IsDuplicateKeyError(err) {
			return fmt.Errorf("update user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("update user: %w", err)
	}

	user.UpdatedAt = audit.UpdatedAt
	user.Version = audit.Version

	return nil
}

// SetActive flips the active flag. It reports false, without touching the
// audit record, when the user is already in the requested state.
func (r *repository) SetActive(
	ctx context.Context,
	user *User,
	active bool,
) (bool, error) {
	query := `
		UPDATE users
		SET active = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND active <> $2
		RETURNING updated_at, version`

	var audit Audit
	err := r.db.GetContext(ctx, &audit, query, user.ID, active)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, user.ID); getErr != nil {
			return false, fmt.Errorf("set active: %w", getErr)
		}
		user.Active = active
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("set active: %w", err)
	}

	user.Active = active
	user.UpdatedAt = audit.UpdatedAt
	user.Version = audit.Version

	return true, nil
}

// UpdatePassword replaces the digest without bumping the audit version;
// it is used for transparent rehash upgrades on login.
func (r *repository) UpdatePassword(
	ctx context.Context,
	id int64,
	passwordHash string,
) error {
	query := `UPDATE users SET password_hash = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}

	return nil
}

// Delete removes the row permanently. MASTER rows are never matched.
func (r *repository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1 AND profile <> 'MASTER'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete user: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) List(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()

	var conditions []string
	var args []any
	argIdx := 1

	if params.Query != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(username ILIKE $%d OR email ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Query)+"%")
		argIdx++
	}

	switch {
	case params.Scoped && params.TenantID > 0:
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIdx))
		args = append(args, params.TenantID)
		argIdx++
	case params.Scoped:
		conditions = append(conditions, "tenant_id IS NULL")
	}

	whereClause := "TRUE"
	if len(conditions) > 0 {
		whereClause = strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM users WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY id ASC
		LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argIdx, argIdx+1)

	args = append(args, params.RPP, params.Offset())

	var users []User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	return users, total, nil
}

func (r *repository) ExistsByEmail(
	ctx context.Context,
	email string,
	excludeID int64,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND id <> $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email, excludeID); err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}

	return exists, nil
}

func (r *repository) ExistsByUsername(
	ctx context.Context,
	username string,
	excludeID int64,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND id <> $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, username, excludeID); err != nil {
		return false, fmt.Errorf("check username exists: %w", err)
	}

	return exists, nil
}

func (r *repository) missOrConflict(
	ctx context.Context,
	op string,
	id int64,
) error {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return fmt.Errorf("%s: stale version: %w", op, core.ErrConflict)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
