// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pedrozc90/tenantusers/internal/auth"
	"github.com/pedrozc90/tenantusers/internal/core"
)

var ErrForbiddenOperation = fmt.Errorf(
	"forbidden operation: %w",
	core.ErrForbidden,
)

// TenantLookup is the part of the tenant store registration depends on.
type TenantLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Requester is the authenticated caller on whose behalf a call runs.
type Requester struct {
	UserID   int64
	TenantID int64
	Profile  Profile
}

func (r Requester) IsMaster() bool {
	return r.Profile == ProfileMaster
}

// SessionRevoker ends every refresh session a user holds.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID int64) error
}

var (
	_ auth.UserProvider = (*Service)(nil)
	_ SessionRevoker    = (auth.Repository)(nil)
)

type Service struct {
	repo     Repository
	tenants  TenantLookup
	sessions SessionRevoker
	hasher   *core.PasswordHasher
}

func NewService(
	repo Repository,
	tenants TenantLookup,
	sessions SessionRevoker,
	hasher *core.PasswordHasher,
) *Service {
	return &Service{
		repo:     repo,
		tenants:  tenants,
		sessions: sessions,
		hasher:   hasher,
	}
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	requester Requester,
) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	exists, err := s.repo.ExistsByEmail(ctx, email, 0)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if exists {
		return nil, duplicateError(fmt.Sprintf("Email %s already in use.", email))
	}

	exists, err = s.repo.ExistsByUsername(ctx, username, 0)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if exists {
		return nil, duplicateError(
			fmt.Sprintf("Username %s already in use.", username),
		)
	}

	if req.Password != req.PasswordConfirm {
		return nil, core.ValidationError(
			"Password and password confirm do not match.",
		)
	}

	tenantID, err := s.resolveTenant(ctx, req.TenantID, requester)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	profile := req.Profile
	if profile == "" {
		profile = ProfileNormal
	}
	if !profile.Valid() {
		return nil, invalidProfileError(profile)
	}
	if profile == ProfileMaster && !requester.IsMaster() {
		return nil, forbiddenOperation("Only a master user can grant MASTER.")
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Profile:      profile,
		Active:       true,
		TenantID:     tenantID,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, core.DuplicateError("username or email")
		}
		return nil, err
	}

	return user, nil
}

func (s *Service) resolveTenant(
	ctx context.Context,
	requested *int64,
	requester Requester,
) (*int64, error) {
	if requester.IsMaster() && requested != nil {
		ok, err := s.tenants.Exists(ctx, *requested)
		if err != nil {
			return nil, fmt.Errorf("register: lookup tenant: %w", err)
		}
		if !ok {
			return nil, core.ValidationError(
				fmt.Sprintf("Tenant %d does not exist.", *requested),
			)
		}
		id := *requested
		return &id, nil
	}

	if requester.TenantID > 0 {
		id := requester.TenantID
		return &id, nil
	}

	return nil, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Find is Get limited to what requester may see. Users of another tenant
// are reported as not found to a non-MASTER requester.
func (s *Service) Find(
	ctx context.Context,
	id int64,
	requester Requester,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !requester.IsMaster() && user.Tenant() != requester.TenantID {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}

	return user, nil
}

// findMutable is Find for writes. Only a MASTER may change a MASTER user.
func (s *Service) findMutable(
	ctx context.Context,
	id int64,
	requester Requester,
) (*User, error) {
	user, err := s.Find(ctx, id, requester)
	if err != nil {
		return nil, err
	}

	if user.IsMaster() && !requester.IsMaster() {
		return nil, forbiddenOperation("Only a master user can modify a master user.")
	}

	return user, nil
}

// Update applies req to the stored user. A request that changes nothing
// returns the stored user with its version untouched.
func (s *Service) Update(
	ctx context.Context,
	req UpdateRequest,
	requester Requester,
) (*User, error) {
	user, err := s.findMutable(ctx, req.ID, requester)
	if err != nil {
		return nil, err
	}

	if !req.Profile.Valid() {
		return nil, invalidProfileError(req.Profile)
	}
	if req.Profile != user.Profile && !requester.IsMaster() {
		return nil, forbiddenOperation("Only a master user can change a profile.")
	}

	if req.Audit != nil && req.Audit.Version != user.Version {
		return nil, core.ConflictError(fmt.Sprintf(
			"User (id: %d) was modified concurrently (version %d, expected %d).",
			user.ID, user.Version, req.Audit.Version,
		))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if email != user.Email {
		exists, err := s.repo.ExistsByEmail(ctx, email, user.ID)
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		if exists {
			return nil, duplicateError(fmt.Sprintf("Email %s already in use.", email))
		}
	}

	if username != user.Username {
		exists, err := s.repo.ExistsByUsername(ctx, username, user.ID)
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		if exists {
			return nil, duplicateError(
				fmt.Sprintf("Username %s already in use.", username),
			)
		}
	}

	active := user.Active
	if req.Active != nil {
		active = *req.Active
	}

	if email == user.Email &&
		username == user.Username &&
		req.Profile == user.Profile &&
		active == user.Active {
		return user, nil
	}

	deactivated := user.Active && !active

	user.Email = email
	user.Username = username
	user.Profile = req.Profile
	user.Active = active

	if err := s.repo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, core.ErrConflict):
			return nil, core.ConflictError(fmt.Sprintf(
				"User (id: %d) was modified concurrently.", user.ID,
			))
		case errors.Is(err, core.ErrDuplicateKey):
			return nil, core.DuplicateError("username or email")
		}
		return nil, err
	}

	if deactivated {
		s.revokeSessions(ctx, user.ID)
	}

	return user, nil
}

func (s *Service) Activate(
	ctx context.Context,
	id int64,
	requester Requester,
) (*User, error) {
	return s.setActive(ctx, id, true, requester)
}

// Deactivate locks the account and ends its refresh sessions. Access tokens
// already issued stay valid until they expire.
func (s *Service) Deactivate(
	ctx context.Context,
	id int64,
	requester Requester,
) (*User, error) {
	return s.setActive(ctx, id, false, requester)
}

func (s *Service) setActive(
	ctx context.Context,
	id int64,
	active bool,
	requester Requester,
) (*User, error) {
	user, err := s.findMutable(ctx, id, requester)
	if err != nil {
		return nil, err
	}

	if user.Active == active {
		return user, nil
	}

	if _, err := s.repo.SetActive(ctx, user, active); err != nil {
		return nil, err
	}

	if !active {
		s.revokeSessions(ctx, user.ID)
	}

	return user, nil
}

// revokeSessions does not fail the call; a locked account cannot refresh
// even when its tokens outlive the revocation attempt.
func (s *Service) revokeSessions(ctx context.Context, userID int64) {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		slog.Warn("failed to revoke sessions of deactivated user",
			"user_id", userID,
			"error", err,
		)
	}
}

// Delete hard-deletes the user. MASTER users are refused before any write.
func (s *Service) Delete(ctx context.Context, id int64, requester Requester) error {
	user, err := s.Find(ctx, id, requester)
	if err != nil {
		return err
	}

	if user.IsMaster() {
		return forbiddenOperation("It's not allowed to delete a master user.")
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) Fetch(
	ctx context.Context,
	params ListUsersParams,
	requester Requester,
) (Page[UserResponse], error) {
	if !requester.IsMaster() {
		params.Scoped = true
		params.TenantID = requester.TenantID
	}
	params.Normalize()

	users, total, err := s.repo.List(ctx, params)
	if err != nil {
		return Page[UserResponse]{}, err
	}

	return NewPage(ToUserResponseList(users), params.Page, params.RPP, total), nil
}

// EnsureMaster creates the bootstrap MASTER account if no user holds the
// username yet. An existing account is left as is.
func (s *Service) EnsureMaster(
	ctx context.Context,
	username, email, password string,
) (*User, error) {
	existing, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("ensure master: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("ensure master: hash password: %w", err)
	}

	user := &User{
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Profile:      ProfileMaster,
		Active:       true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ensure master: %w", err)
	}

	slog.Info("master account created",
		"user_id", user.ID,
		"username", user.Username,
	)

	return user, nil
}

// GetByUsername serves credential lookups for the auth service.
func (s *Service) GetByUsername(
	ctx context.Context,
	username string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return toUserInfo(user), nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserInfo(user), nil
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	id int64,
	passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, id, passwordHash)
}

func toUserInfo(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Profile:      string(u.Profile),
		Active:       u.Active,
		TenantID:     u.Tenant(),
	}
}

func forbiddenOperation(message string) *core.AppError {
	return core.NewAppError(
		ErrForbiddenOperation,
		message,
		http.StatusForbidden,
		"FORBIDDEN_OPERATION",
	)
}

func invalidProfileError(p Profile) *core.AppError {
	return core.ValidationError(fmt.Sprintf("Profile %s is not valid.", p))
}

func duplicateError(message string) *core.AppError {
	return core.NewAppError(
		core.ErrDuplicateKey,
		message,
		http.StatusConflict,
		"DUPLICATE",
	)
}
