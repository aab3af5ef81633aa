// AngelaMos | 2026
// service_test.go

package user

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrozc90/tenantusers/internal/core"
)

var testHasher = core.NewPasswordHasher(core.Argon2Params{
	Time:    1,
	Memory:  8 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
})

type memRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*User
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[int64]*User{}}
}

func (m *memRepo) seed(u User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	u.Version = 1
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = &u
	cp := u
	return &cp
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	stored := m.seed(*u)
	*u = *stored
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) find(match func(*User) bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (m *memRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return u.Username == username })
}

func (m *memRepo) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[u.ID]
	if !ok {
		return fmt.Errorf("update user: %w", core.ErrNotFound)
	}
	if stored.Version != u.Version {
		return fmt.Errorf("update user: %w", core.ErrConflict)
	}
	u.Version++
	u.UpdatedAt = time.Now()
	cp := *u
	cp.PasswordHash = stored.PasswordHash
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) SetActive(_ context.Context, u *User, active bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[u.ID]
	if !ok {
		return false, fmt.Errorf("set active: %w", core.ErrNotFound)
	}
	u.Active = active
	if stored.Active == active {
		return false, nil
	}
	stored.Active = active
	stored.Version++
	u.Version = stored.Version
	return true, nil
}

func (m *memRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}
	u.PasswordHash = hash
	return nil
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.IsMaster() {
		return fmt.Errorf("delete user: %w", core.ErrNotFound)
	}
	delete(m.users, id)
	return nil
}

func (m *memRepo) List(_ context.Context, p ListUsersParams) ([]User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Normalize()

	var matched []User
	for _, u := range m.users {
		if p.Query != "" &&
			!strings.Contains(u.Username, p.Query) &&
			!strings.Contains(u.Email, p.Query) {
			continue
		}
		if p.Scoped && u.Tenant() != p.TenantID {
			continue
		}
		matched = append(matched, *u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	start := min(p.Offset(), total)
	end := min(start+p.RPP, total)
	return matched[start:end], total, nil
}

func (m *memRepo) ExistsByEmail(_ context.Context, email string, excludeID int64) (bool, error) {
	u, err := m.find(func(u *User) bool { return u.Email == email && u.ID != excludeID })
	return u != nil && err == nil, nil
}

func (m *memRepo) ExistsByUsername(_ context.Context, username string, excludeID int64) (bool, error) {
	u, err := m.find(func(u *User) bool { return u.Username == username && u.ID != excludeID })
	return u != nil && err == nil, nil
}

type fakeTenants map[int64]bool

func (f fakeTenants) Exists(_ context.Context, id int64) (bool, error) {
	return f[id], nil
}

type fakeSessions struct {
	mu      sync.Mutex
	revoked []int64
	err     error
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, userID)
	return f.err
}

var (
	masterRequester = Requester{UserID: 1, Profile: ProfileMaster}
	tenantRequester = Requester{UserID: 2, TenantID: 7, Profile: ProfileNormal}
)

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	svc, repo, _ := newTestServiceWithSessions(t)
	return svc, repo
}

func newTestServiceWithSessions(t *testing.T) (*Service, *memRepo, *fakeSessions) {
	t.Helper()
	repo := newMemRepo()
	repo.seed(User{
		Username: "master", Email: "master@email.com",
		Profile: ProfileMaster, Active: true,
	})
	tenant := int64(7)
	repo.seed(User{
		Username: "alice", Email: "alice@example.com",
		Profile: ProfileNormal, Active: true, TenantID: &tenant,
	})
	sessions := &fakeSessions{}
	return NewService(repo, fakeTenants{7: true, 8: true}, sessions, testHasher), repo, sessions
}

func registerReq(username string) RegisterRequest {
	return RegisterRequest{
		Email:           username + "@example.com",
		Username:        username,
		Password:        "pw",
		PasswordConfirm: "pw",
	}
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	var appErr *core.AppError
	require.True(t, errors.As(err, &appErr), "expected *core.AppError, got %T", err)
	return appErr.Code
}

func TestRegister(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, registerReq("bob"), tenantRequester)
	require.NoError(t, err)
	assert.True(t, u.Active)
	assert.Equal(t, 1, u.Version)
	assert.Equal(t, ProfileNormal, u.Profile)
	assert.Equal(t, int64(7), u.Tenant())

	stored, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	ok, err := testHasher.Verify("pw", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterTenantAssignment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := registerReq("carol")
	other := int64(8)
	req.TenantID = &other
	u, err := svc.Register(ctx, req, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, int64(8), u.Tenant())

	req = registerReq("dave")
	req.TenantID = &other
	u, err = svc.Register(ctx, req, tenantRequester)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.Tenant(), "non-master requester cannot pick a tenant")

	req = registerReq("erin")
	unknown := int64(99)
	req.TenantID = &unknown
	_, err = svc.Register(ctx, req, masterRequester)
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	u, err = svc.Register(ctx, registerReq("frank"), masterRequester)
	require.NoError(t, err)
	assert.Nil(t, u.TenantID)
}

func TestRegisterRejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dupEmail := registerReq("zed")
	dupEmail.Email = "alice@example.com"
	_, err := svc.Register(ctx, dupEmail, masterRequester)
	assert.Equal(t, "DUPLICATE", appCode(t, err))
	assert.Contains(t, err.Error(), "Email alice@example.com already in use.")

	_, err = svc.Register(ctx, registerReq("alice"), masterRequester)
	assert.Equal(t, "DUPLICATE", appCode(t, err))

	mismatch := registerReq("yan")
	mismatch.PasswordConfirm = "other"
	_, err = svc.Register(ctx, mismatch, masterRequester)
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))

	escalate := registerReq("xia")
	escalate.Profile = ProfileMaster
	_, err = svc.Register(ctx, escalate, tenantRequester)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func updateReqFor(u *User) UpdateRequest {
	active := u.Active
	return UpdateRequest{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Profile:  u.Profile,
		Active:   &active,
	}
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	alice, err := svc.Get(ctx, 2)
	require.NoError(t, err)

	unchanged, err := svc.Update(ctx, updateReqFor(alice), masterRequester)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.Version)

	req := updateReqFor(alice)
	req.Email = "Alice@New.example.com"
	updated, err := svc.Update(ctx, req, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "alice@new.example.com", updated.Email)

	stale := updateReqFor(updated)
	stale.Username = "alicia"
	stale.Audit = &AuditRequest{Version: 1}
	_, err = svc.Update(ctx, stale, masterRequester)
	assert.Equal(t, "CONFLICT", appCode(t, err))
	assert.ErrorIs(t, err, core.ErrConflict)

	collide := updateReqFor(updated)
	collide.Username = "master"
	_, err = svc.Update(ctx, collide, masterRequester)
	assert.Equal(t, "DUPLICATE", appCode(t, err))

	_, err = svc.Update(ctx, UpdateRequest{ID: 404}, masterRequester)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestActivateDeactivateIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	u, err := svc.Activate(ctx, 2, masterRequester)
	require.NoError(t, err)
	assert.True(t, u.Active)
	assert.Equal(t, 1, u.Version)

	u, err = svc.Deactivate(ctx, 2, masterRequester)
	require.NoError(t, err)
	assert.False(t, u.Active)
	assert.Equal(t, 2, u.Version)

	u, err = svc.Deactivate(ctx, 2, masterRequester)
	require.NoError(t, err)
	assert.False(t, u.Active)

	stored, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)

	_, err = svc.Activate(ctx, 404, masterRequester)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeactivateRevokesSessions(t *testing.T) {
	svc, _, sessions := newTestServiceWithSessions(t)
	ctx := context.Background()

	_, err := svc.Deactivate(ctx, 2, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, sessions.revoked)

	_, err = svc.Deactivate(ctx, 2, masterRequester)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, 2, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, sessions.revoked, "no-op and activation keep sessions")

	alice, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	req := updateReqFor(alice)
	inactive := false
	req.Active = &inactive
	_, err = svc.Update(ctx, req, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2}, sessions.revoked)

	sessions.err = errors.New("store unavailable")
	_, err = svc.Activate(ctx, 2, masterRequester)
	require.NoError(t, err)
	u, err := svc.Deactivate(ctx, 2, masterRequester)
	require.NoError(t, err)
	assert.False(t, u.Active)
}

func TestTenantScopedAccess(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	other := int64(8)
	olga := repo.seed(User{
		Username: "olga", Email: "olga@example.com",
		Profile: ProfileNormal, Active: true, TenantID: &other,
	})

	_, err := svc.Find(ctx, olga.ID, tenantRequester)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Update(ctx, updateReqFor(olga), tenantRequester)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Deactivate(ctx, olga.ID, tenantRequester)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, olga.ID, tenantRequester), core.ErrNotFound)

	stored, err := repo.GetByID(ctx, olga.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.Equal(t, 1, stored.Version)

	found, err := svc.Find(ctx, 2, tenantRequester)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)

	_, err = svc.Find(ctx, 2, Requester{UserID: 5, Profile: ProfileNormal})
	assert.ErrorIs(t, err, core.ErrNotFound)

	found, err = svc.Find(ctx, olga.ID, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, "olga", found.Username)
}

func TestNonMasterCannotEscalate(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	alice, err := svc.Get(ctx, 2)
	require.NoError(t, err)

	promote := updateReqFor(alice)
	promote.Profile = ProfileMaster
	_, err = svc.Update(ctx, promote, tenantRequester)
	assert.Equal(t, "FORBIDDEN_OPERATION", appCode(t, err))
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	rename := updateReqFor(alice)
	rename.Username = "alicia"
	renamed, err := svc.Update(ctx, rename, tenantRequester)
	require.NoError(t, err)
	assert.Equal(t, ProfileNormal, renamed.Profile)
	assert.Equal(t, 2, renamed.Version)

	tenantless := Requester{UserID: 5, Profile: ProfileNormal}
	master, err := svc.Find(ctx, 1, tenantless)
	require.NoError(t, err)

	demote := updateReqFor(master)
	demote.Profile = ProfileNormal
	_, err = svc.Update(ctx, demote, tenantless)
	assert.Equal(t, "FORBIDDEN_OPERATION", appCode(t, err))

	_, err = svc.Deactivate(ctx, 1, tenantless)
	assert.Equal(t, "FORBIDDEN_OPERATION", appCode(t, err))

	err = svc.Delete(ctx, 1, tenantless)
	assert.Equal(t, "FORBIDDEN_OPERATION", appCode(t, err))

	stored, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stored.IsMaster())
	assert.True(t, stored.Active)
	assert.Equal(t, 1, stored.Version)

	invalid := updateReqFor(renamed)
	invalid.Profile = Profile("ROOT")
	_, err = svc.Update(ctx, invalid, masterRequester)
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))

	granted := updateReqFor(renamed)
	granted.Profile = ProfileMaster
	u, err := svc.Update(ctx, granted, masterRequester)
	require.NoError(t, err)
	assert.True(t, u.IsMaster())
	assert.Equal(t, 3, u.Version)
}

func TestDelete(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	err := svc.Delete(ctx, 1, masterRequester)
	assert.Equal(t, "FORBIDDEN_OPERATION", appCode(t, err))
	assert.ErrorIs(t, err, ErrForbiddenOperation)
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 2, masterRequester))
	_, err = svc.Get(ctx, 2)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, 2, masterRequester), core.ErrNotFound)
}

func TestFetchScopesNonMaster(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	page, err := svc.Fetch(ctx, ListUsersParams{}, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 15, page.RPP)

	page, err = svc.Fetch(ctx, ListUsersParams{}, tenantRequester)
	require.NoError(t, err)
	require.Len(t, page.List, 1)
	assert.Equal(t, "alice", page.List[0].Username)

	page, err = svc.Fetch(ctx, ListUsersParams{}, Requester{UserID: 5, Profile: ProfileNormal})
	require.NoError(t, err)
	require.Len(t, page.List, 1)
	assert.Equal(t, "master", page.List[0].Username, "tenantless requester sees tenantless users only")

	page, err = svc.Fetch(ctx, ListUsersParams{Query: "mast"}, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestEnsureMaster(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, fakeTenants{}, &fakeSessions{}, testHasher)
	ctx := context.Background()

	u, err := svc.EnsureMaster(ctx, "master", "Master@Email.com", "1")
	require.NoError(t, err)
	assert.True(t, u.IsMaster())
	assert.Equal(t, "master@email.com", u.Email)

	again, err := svc.EnsureMaster(ctx, "master", "master@email.com", "other")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Len(t, repo.users, 1)
}

func TestUserProviderAdapter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	info, err := svc.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.ID)
	assert.Equal(t, "NORMAL", info.Profile)
	assert.Equal(t, int64(7), info.TenantID)

	info, err = svc.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, info.TenantID)

	require.NoError(t, svc.UpdatePassword(ctx, 1, "new-hash"))
	stored, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)
	assert.Equal(t, 1, stored.Version)

	_, err = svc.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLifecycleVersionProgression(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	john, err := svc.Register(ctx, RegisterRequest{
		Email:           "john@email.com",
		Username:        "john",
		Password:        "1",
		PasswordConfirm: "1",
	}, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, 1, john.Version)

	req := updateReqFor(john)
	req.Email = "john.micronaut@email.com"
	john, err = svc.Update(ctx, req, masterRequester)
	require.NoError(t, err)
	assert.Equal(t, 2, john.Version)

	john, err = svc.Deactivate(ctx, john.ID, masterRequester)
	require.NoError(t, err)
	assert.False(t, john.Active)
	assert.Equal(t, 3, john.Version)
}
