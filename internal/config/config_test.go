package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp 切到空目录，避免读到仓库内的 config.yaml
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Reconcile.SweepInterval)
	assert.Equal(t, time.Minute, cfg.Dashboard.CacheTTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Reconcile.ExpenseStatuses)
	assert.Equal(t, "host=127.0.0.1 port=5432 user=siteproc password= dbname=siteproc sslmode=disable", cfg.Database.DSN())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("RECONCILE_SWEEP_INTERVAL", "5m")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.SweepInterval)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}
