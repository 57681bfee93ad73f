package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmon-auth/internal/model"
)

func TestEnsureAdminIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.False(t, created)

	count, err := repo.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	admin, err := repo.FindAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Username)
	assert.True(t, svc.hasher.Verify("admin123", admin.PasswordHash))
}

func TestEnsureAdminSkipsAfterRotation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	admin := bootstrap(t, svc)

	require.NoError(t, svc.RotateAdminCredentials(ctx, admin, model.CredentialsRequest{Username: "root", Password: "rotated"}))

	created, err := svc.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.FindByUsername(ctx, "admin")
	require.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestEnsureAdminUsernameTakenByUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, model.CredentialsRequest{Username: "admin", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.EnsureAdmin(ctx, "admin", "admin123")
	require.Error(t, err)
}

func TestEnsureAdminRejectsEmptyCredentials(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.EnsureAdmin(context.Background(), "", "admin123")
	require.Error(t, err)
}

func TestEnsureAdminRefusesSeveralAdmins(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc)

	second := model.Account{Username: "shadow", PasswordHash: "x", IsAdmin: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Insert(ctx, &second))

	created, err := svc.EnsureAdmin(ctx, "admin", "admin123")
	require.ErrorContains(t, err, "2 admin accounts")
	assert.False(t, created)
}
