package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingSystemYAMLFallsBackToDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_NAME", "engagic")
	t.Setenv("DB_USER", "engagic")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "engagic", cfg.Database.Name)
	assert.Equal(t, "engagic", cfg.Database.User)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 7, cfg.Sync.DaysBack)
	assert.Equal(t, 14, cfg.Sync.DaysForward)
}

func TestLoad_SystemYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
database:
  host: postgres.prod
  name: engagic
  user: engagic
sync:
  days_back: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres.prod", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Sync.DaysBack)
	assert.Equal(t, 14, cfg.Sync.DaysForward, "unset sync fields should keep the default")
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
database:
  host: postgres.prod
  name: engagic
  user: engagic
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system.yaml"), []byte(yamlContent), 0o644))
	t.Setenv("DB_HOST", "postgres.override")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres.override", cfg.Database.Host)
}

func TestLoad_NotifyWebhookEnvEnablesNotify(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_NAME", "engagic")
	t.Setenv("DB_USER", "engagic")
	t.Setenv("NOTIFY_WEBHOOK_URL", "https://hooks.example/abc")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, "https://hooks.example/abc", cfg.Notify.WebhookURL)
}

func TestLoad_ValidationFailsWithoutDatabaseNameAndUser(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.name")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
