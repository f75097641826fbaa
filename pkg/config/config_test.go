package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"debug", "DEBUG", "dbname", "DB_NAME", "user", "DB_USER", "password", "DB_PASSWORD",
		"host", "DB_HOST", "port", "DB_PORT", "DB_ENGINE", "SQLITE_PATH", "HTTP_ADDR",
		"JWT_SECRET", "ACCESS_TOKEN_LIFETIME", "REFRESH_TOKEN_LIFETIME", "PAGE_SIZE", "CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDebugDefaultsToSQLite(t *testing.T) {
	clearEnv(t)
	t.Setenv("debug", "True")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, EngineSQLite, cfg.DB.Engine)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, 240*time.Hour, cfg.Auth.RefreshTTL)
	assert.NotEmpty(t, cfg.Auth.Secret)
}

func TestLoadProductionReadsPostgresSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("debug", "False")
	t.Setenv("dbname", "library")
	t.Setenv("user", "program")
	t.Setenv("password", "test")
	t.Setenv("host", "db")
	t.Setenv("port", "6543")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
	assert.Equal(t, EnginePostgres, cfg.DB.Engine)
	assert.Equal(t, "library", cfg.DB.Name)
	assert.Equal(t, "program", cfg.DB.User)
	assert.Equal(t, "test", cfg.DB.Password)
	assert.Equal(t, "db", cfg.DB.Host)
	assert.Equal(t, "6543", cfg.DB.Port)
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("dbname", "library")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
debug: true
page_size: 25
cors_origins: ["http://localhost:3000"]
database:
  engine: sqlite
  sqlite_path: /tmp/library.sqlite3
auth:
  access_token_lifetime: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("PAGE_SIZE", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, "/tmp/library.sqlite3", cfg.DB.SQLitePath)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	clearEnv(t)
	t.Setenv("debug", "1")
	t.Setenv("DB_ENGINE", "oracle")

	_, err := Load("")
	assert.Error(t, err)
}
