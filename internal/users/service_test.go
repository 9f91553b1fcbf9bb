package users

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/guardpost/guardpost/internal/guard"
)

type memoryUsersRepo struct {
	users  map[int64]User
	hashes map[int64]string
	grants map[int64]map[string]struct{}
	nextID int64
}

func newMemoryUsersRepo() *memoryUsersRepo {
	return &memoryUsersRepo{
		users:  make(map[int64]User),
		hashes: make(map[int64]string),
		grants: make(map[int64]map[string]struct{}),
	}
}

func (r *memoryUsersRepo) ListUsers(ctx context.Context) ([]User, error) {
	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (r *memoryUsersRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryUsersRepo) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return User{}, ErrDuplicateEmail
		}
	}
	r.nextID++
	u := User{ID: r.nextID, Email: email, Name: name, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.users[u.ID] = u
	r.hashes[u.ID] = passwordHash
	return u, nil
}

func (r *memoryUsersRepo) SetSuperuser(ctx context.Context, id int64, superuser bool) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Superuser = superuser
	r.users[id] = u
	return u, nil
}

func (r *memoryUsersRepo) SetActive(ctx context.Context, id int64, active bool) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.IsActive = active
	r.users[id] = u
	return u, nil
}

func (r *memoryUsersRepo) ListGrants(ctx context.Context, userID int64) ([]string, error) {
	perms := make([]string, 0, len(r.grants[userID]))
	for p := range r.grants[userID] {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

func (r *memoryUsersRepo) AddGrant(ctx context.Context, userID int64, permission string) error {
	if r.grants[userID] == nil {
		r.grants[userID] = make(map[string]struct{})
	}
	r.grants[userID][permission] = struct{}{}
	return nil
}

func (r *memoryUsersRepo) RemoveGrant(ctx context.Context, userID int64, permission string) error {
	delete(r.grants[userID], permission)
	return nil
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMemoryUsersRepo()
	svc := NewService(repo, nil, nil)

	user, err := svc.CreateUser(context.Background(), 1, " Admin@Test.Local ", "Admin", "supersecret")
	require.NoError(t, err)
	require.Equal(t, "admin@test.local", user.Email)

	hash := repo.hashes[user.ID]
	require.NotEqual(t, "supersecret", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("supersecret")))
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	svc := NewService(newMemoryUsersRepo(), nil, nil)

	_, err := svc.CreateUser(context.Background(), 1, "a@test.local", "A", "short")
	require.Error(t, err)
}

func TestReplaceGrantsDiffs(t *testing.T) {
	repo := newMemoryUsersRepo()
	svc := NewService(repo, nil, nil)

	user, err := svc.CreateUser(context.Background(), 1, "op@test.local", "Op", "supersecret")
	require.NoError(t, err)

	require.NoError(t, svc.ReplaceGrants(context.Background(), 1, user.ID, []string{"orgs.view", "users.view"}))
	require.NoError(t, svc.ReplaceGrants(context.Background(), 1, user.ID, []string{"orgs.view", "orgs.edit"}))

	grants, err := svc.Grants(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"orgs.edit", "orgs.view"}, grants)
}

func TestPrincipalResolvesGrants(t *testing.T) {
	repo := newMemoryUsersRepo()
	svc := NewService(repo, nil, nil)

	user, err := svc.CreateUser(context.Background(), 1, "op@test.local", "Op", "supersecret")
	require.NoError(t, err)
	require.NoError(t, svc.ReplaceGrants(context.Background(), 1, user.ID, []string{"orgs.view"}))

	who, granted, err := svc.Principal(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, who.GetID())
	require.False(t, who.IsSuperUser())
	require.True(t, granted.Has("orgs.view"))
}

func TestPrincipalRejectsInactiveUser(t *testing.T) {
	repo := newMemoryUsersRepo()
	svc := NewService(repo, nil, nil)

	user, err := svc.CreateUser(context.Background(), 1, "op@test.local", "Op", "supersecret")
	require.NoError(t, err)
	_, err = svc.SetActive(context.Background(), 1, user.ID, false)
	require.NoError(t, err)

	_, _, err = svc.Principal(context.Background(), user.ID)
	require.ErrorIs(t, err, guard.ErrUnknownPrincipal)
}

func TestPrincipalRejectsDeletedUser(t *testing.T) {
	svc := NewService(newMemoryUsersRepo(), nil, nil)

	_, _, err := svc.Principal(context.Background(), 404)
	require.ErrorIs(t, err, guard.ErrUnknownPrincipal)
}

func TestSetSuperuserTogglesFlag(t *testing.T) {
	repo := newMemoryUsersRepo()
	svc := NewService(repo, nil, nil)

	user, err := svc.CreateUser(context.Background(), 1, "op@test.local", "Op", "supersecret")
	require.NoError(t, err)

	updated, err := svc.SetSuperuser(context.Background(), 1, user.ID, true)
	require.NoError(t, err)
	require.True(t, updated.IsSuperUser())
}
