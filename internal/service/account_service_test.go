package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"netmon-auth/internal/database/dbtest"
	"netmon-auth/internal/model"
	"netmon-auth/internal/password"
	"netmon-auth/internal/repository"
	"netmon-auth/internal/token"
	"netmon-auth/pkg/apierror"
)

func newTestService(t *testing.T) (*AccountService, repository.AccountRepository) {
	t.Helper()

	repo, err := repository.NewAccountRepository(dbtest.SQLite(t))
	require.NoError(t, err)

	tokens, err := token.NewService("service-test-secret", 20*time.Minute)
	require.NoError(t, err)

	return NewAccountService(repo, password.NewHasher(bcrypt.MinCost), tokens), repo
}

func bootstrap(t *testing.T, svc *AccountService) model.Account {
	t.Helper()

	created, err := svc.EnsureAdmin(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.True(t, created)

	admin, err := svc.accounts.FindAdmin(context.Background())
	require.NoError(t, err)
	return admin
}

func requireAPIError(t *testing.T, err error, status int, code string) *apierror.APIError {
	t.Helper()

	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, status, apiErr.HTTPStatus)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc)

	resp, err := svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, TokenTypeBearer, resp.TokenType)
	assert.True(t, resp.IsAdmin)
	assert.Equal(t, int64(20*60), resp.ExpiresIn)

	subject, err := svc.tokens.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc)

	_, wrongPassword := svc.Login(ctx, "admin", "nope")
	_, unknownUser := svc.Login(ctx, "ghost", "admin123")

	a := requireAPIError(t, wrongPassword, http.StatusUnauthorized, apierror.CodeUnauthorized)
	b := requireAPIError(t, unknownUser, http.StatusUnauthorized, apierror.CodeUnauthorized)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, "Incorrect username or password", a.Message)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := bootstrap(t, svc)

	resp, err := svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	account, err := svc.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, account.ID)

	_, err = svc.Authenticate(ctx, "garbage")
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthorized)
}

func TestAuthenticateDeletedAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc)

	_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)
	resp, err := svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, "alice"))

	_, err = svc.Authenticate(ctx, resp.AccessToken)
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthorized)
}

func TestCreateUser(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	view, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "  alice ", Password: "pw1"})
	require.NoError(t, err)
	assert.NotZero(t, view.ID)
	assert.Equal(t, "alice", view.Username)
	assert.False(t, view.IsAdmin)

	stored, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.True(t, svc.hasher.Verify("pw1", stored.PasswordHash))
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestCreateUserDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, model.CredentialsRequest{Username: "alice", Password: "pw2"})
	requireAPIError(t, err, http.StatusConflict, apierror.CodeConflict)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := map[string]model.CredentialsRequest{
		"empty username":    {Username: "", Password: "pw"},
		"blank username":    {Username: "   ", Password: "pw"},
		"empty password":    {Username: "alice", Password: ""},
		"long username":     {Username: strings.Repeat("a", MaxUsernameLength+1), Password: "pw"},
		"password too long": {Username: "alice", Password: strings.Repeat("p", password.MaxLength+1)},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateUser(context.Background(), req)
			requireAPIError(t, err, http.StatusBadRequest, apierror.CodeBadRequest)
		})
	}
}

func TestListUsersExcludesAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)

	for _, name := range []string{"bob", "alice"} {
		_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: name, Password: "pw"})
		require.NoError(t, err)
	}

	users, err = svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Username)
	assert.Equal(t, "alice", users[1].Username)
}

func TestDeleteUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc)

	_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, "alice"))
	requireAPIError(t, svc.DeleteUser(ctx, "alice"), http.StatusNotFound, apierror.CodeNotFound)

	err = svc.DeleteUser(ctx, "admin")
	apiErr := requireAPIError(t, err, http.StatusBadRequest, apierror.CodeBadRequest)
	assert.Equal(t, "Cannot delete admin user", apiErr.Message)

	_, err = svc.accounts.FindAdmin(ctx)
	require.NoError(t, err)
}

func TestRotateAdminCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := bootstrap(t, svc)

	require.NoError(t, svc.RotateAdminCredentials(ctx, admin, model.CredentialsRequest{Username: "root", Password: "n3w-secret"}))

	_, err := svc.Login(ctx, "admin", "admin123")
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthorized)

	resp, err := svc.Login(ctx, "root", "n3w-secret")
	require.NoError(t, err)
	assert.True(t, resp.IsAdmin)

	rotated, err := svc.accounts.FindAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, rotated.ID)
	assert.True(t, admin.CreatedAt.Equal(rotated.CreatedAt))
}

func TestRotateAdminCredentialsKeepsUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := bootstrap(t, svc)

	require.NoError(t, svc.RotateAdminCredentials(ctx, admin, model.CredentialsRequest{Username: "admin", Password: "n3w-secret"}))

	_, err := svc.Login(ctx, "admin", "n3w-secret")
	require.NoError(t, err)
}

func TestRotateAdminCredentialsConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	admin := bootstrap(t, svc)

	_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	err = svc.RotateAdminCredentials(ctx, admin, model.CredentialsRequest{Username: "alice", Password: "x"})
	requireAPIError(t, err, http.StatusConflict, apierror.CodeConflict)

	_, err = svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
}

func TestRotateRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RotateAdminCredentials(ctx, model.Account{ID: 9, Username: "alice"}, model.CredentialsRequest{Username: "root", Password: "x"})
	requireAPIError(t, err, http.StatusForbidden, apierror.CodeForbidden)
}

// stalePrecheckRepo hides existing usernames from FindByUsername so writes
// reach the unique index, as when a concurrent request wins the race.
type stalePrecheckRepo struct {
	repository.AccountRepository
}

func (stalePrecheckRepo) FindByUsername(context.Context, string) (model.Account, error) {
	return model.Account{}, model.ErrAccountNotFound
}

func TestCreateUserInsertConflict(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	racing := NewAccountService(stalePrecheckRepo{repo}, svc.hasher, svc.tokens)
	_, err = racing.CreateUser(ctx, model.CredentialsRequest{Username: "alice", Password: "other"})
	apiErr := requireAPIError(t, err, http.StatusConflict, apierror.CodeConflict)
	assert.Equal(t, "Username already registered", apiErr.Message)
}

func TestRotateAdminCredentialsUpdateConflict(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	admin := bootstrap(t, svc)

	_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "bob", Password: "pw"})
	require.NoError(t, err)

	racing := NewAccountService(stalePrecheckRepo{repo}, svc.hasher, svc.tokens)
	err = racing.RotateAdminCredentials(ctx, admin, model.CredentialsRequest{Username: "bob", Password: "new"})
	requireAPIError(t, err, http.StatusConflict, apierror.CodeConflict)

	stored, err := repo.FindAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", stored.Username)
}
