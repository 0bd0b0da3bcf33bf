package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/scrapper/internal/config"
	localstorage "github.com/JakeFAU/scrapper/internal/storage/local"
	memorystorage "github.com/JakeFAU/scrapper/internal/storage/memory"
)

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	return &App{cfg: cfg, logger: zaptest.NewLogger(t)}
}

func TestSetupStorageBackends(t *testing.T) {
	t.Parallel()

	var cfg config.Config
	cfg.Storage.Backend = config.BackendMemory
	blobs, err := newTestApp(t, cfg).setupStorage(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &memorystorage.BlobStore{}, blobs)

	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.Local.BaseDir = filepath.Join(t.TempDir(), "results")
	blobs, err = newTestApp(t, cfg).setupStorage(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &localstorage.BlobStore{}, blobs)
}

func TestLoadUsers(t *testing.T) {
	t.Parallel()

	var cfg config.Config
	users, err := newTestApp(t, cfg).loadUsers()
	require.NoError(t, err)
	assert.Nil(t, users)

	cfg.Auth.HtpasswdFile = filepath.Join(t.TempDir(), "missing")
	users, err = newTestApp(t, cfg).loadUsers()
	require.NoError(t, err)
	assert.Nil(t, users)

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), ".htpasswd")
	require.NoError(t, os.WriteFile(path, []byte("admin:"+string(hash)+"\n"), 0o600))
	cfg.Auth.HtpasswdFile = path
	users, err = newTestApp(t, cfg).loadUsers()
	require.NoError(t, err)
	require.NotNil(t, users)
	assert.True(t, users.Verify("admin", "pw"))

	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("broken\n", 1)), 0o600))
	_, err = newTestApp(t, cfg).loadUsers()
	require.Error(t, err)
}

func TestOptionalInfrastructureDisabled(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, config.Config{})
	require.NoError(t, app.setupDatabase(context.Background()))
	require.NoError(t, app.setupPublisher(context.Background()))
	assert.Nil(t, app.index)
	assert.Nil(t, app.publisher)
	require.NoError(t, app.Close(context.Background()))
}
