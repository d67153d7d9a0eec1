package bootstrap

import (
	"context"
	"testing"

	"bookswap/internal/config"
	"bookswap/internal/models"
	"bookswap/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func devConfig() *config.Config {
	return &config.Config{
		Env:               "development",
		DevBootstrapAdmin: true,
		DevAdminUsername:  "librarian",
		DevAdminEmail:     "Librarian@BookSwap.local",
		DevAdminPassword:  "adminpass1",
	}
}

func TestEnsureDevAdmin_CreatesAdmin(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, EnsureDevAdmin(context.Background(), devConfig(), db))

	var admin models.User
	require.NoError(t, db.Where("email = ?", "librarian@bookswap.local").First(&admin).Error)
	assert.Equal(t, "librarian", admin.Username)
	assert.True(t, admin.IsAdmin())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("adminpass1")))

	// idempotent
	require.NoError(t, EnsureDevAdmin(context.Background(), devConfig(), db))
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureDevAdmin_PromotesExistingMember(t *testing.T) {
	db := testutil.NewTestDB(t)
	member := testutil.CreateUser(t, db, "librarian")
	require.NoError(t, db.Model(member).Update("email", "librarian@bookswap.local").Error)

	require.NoError(t, EnsureDevAdmin(context.Background(), devConfig(), db))

	var got models.User
	require.NoError(t, db.First(&got, member.ID).Error)
	assert.Equal(t, models.RoleAdmin, got.Role)
}

func TestEnsureDevAdmin_Guards(t *testing.T) {
	db := testutil.NewTestDB(t)

	prod := devConfig()
	prod.Env = "production"
	require.NoError(t, EnsureDevAdmin(context.Background(), prod, db))

	disabled := devConfig()
	disabled.DevBootstrapAdmin = false
	require.NoError(t, EnsureDevAdmin(context.Background(), disabled, db))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)

	noPassword := devConfig()
	noPassword.DevAdminPassword = ""
	assert.ErrorContains(t, EnsureDevAdmin(context.Background(), noPassword, db), "DEV_ADMIN_PASSWORD")
}
