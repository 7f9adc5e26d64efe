package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/storage"
	"github.com/hongminglow/svcmon/internal/storage/sqlite"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := rootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "users.db")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("USERS_DB_FILE", dbFile)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("USER_PASSWORD", "")
	return dbFile
}

func TestCommandTree(t *testing.T) {
	cmd := rootCmd()
	for _, path := range [][]string{{"serve"}, {"bootstrap"}, {"user", "add"}, {"user", "delete"}} {
		found, _, err := cmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestBootstrapAndUserCommands(t *testing.T) {
	dbFile := setupEnv(t)

	require.NoError(t, run(t, "bootstrap"))
	require.NoError(t, run(t, "bootstrap"), "bootstrap is idempotent")
	require.NoError(t, run(t, "user", "add", "ops", "--password", "0ps-pass", "--role", "admin"))
	assert.ErrorContains(t, run(t, "user", "add", "ops", "--password", "other"), "already exists")
	assert.Error(t, run(t, "user", "add", "eve", "--password", "x", "--role", "root"))

	ctx := context.Background()
	store, err := sqlite.NewUserStore(ctx, dbFile)
	require.NoError(t, err)
	for name, role := range map[string]models.Role{"admin": models.RoleAdmin, "user": models.RoleUser, "ops": models.RoleAdmin} {
		u, err := store.FindByUsername(ctx, name)
		require.NoError(t, err, name)
		assert.Equal(t, role, u.Role, name)
	}
	store.Close()

	require.NoError(t, run(t, "user", "delete", "ops"))
	assert.ErrorContains(t, run(t, "user", "delete", "ops"), "not found")

	store, err = sqlite.NewUserStore(ctx, dbFile)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.FindByUsername(ctx, "ops")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInvalidConfigFailsFast(t *testing.T) {
	setupEnv(t)
	t.Setenv("PASSWORD_HASH_ITERATIONS", "1000")

	assert.ErrorContains(t, run(t, "bootstrap"), "PASSWORD_HASH_ITERATIONS")
}
