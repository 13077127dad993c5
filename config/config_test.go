package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudrockdev/mudrockdbtool/adapter"
)

func writeConfig(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o600))
}

func TestLoadPostgres(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "reporting.yaml", `
driver: postgres
host: pg.internal
database: reports
username: reader
password: secret
batchSize: 250
`)

	cfg, err := Load(dir, "reporting")
	require.NoError(t, err)
	assert.Equal(t, adapter.Config{
		Name:           "reporting",
		Driver:         adapter.PostgreSQL,
		Host:           "pg.internal",
		Port:           5432,
		Database:       "reports",
		Schema:         "public",
		Username:       "reader",
		Password:       "secret",
		SSLMode:        "disable",
		BatchSize:      250,
		CredentialsDir: dir,
	}, cfg)
}

func TestLoadDefaultsToMySQL(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "app.yml", "host: localhost\ndatabase: app\nusername: root\n")

	cfg, err := Load(dir, "app")
	require.NoError(t, err)
	assert.Equal(t, adapter.MySQL, cfg.Driver)
	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, adapter.DefaultBatchSize, cfg.BatchSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "prod-db.yaml", "host: localhost\ndatabase: app\nusername: root\npassword: file\n")
	t.Setenv("DBTOOL_PROD_DB_PASSWORD", "from-env")
	t.Setenv("DBTOOL_PROD_DB_HOST", "10.0.0.5")

	cfg, err := Load(dir, "prod-db")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, "10.0.0.5", cfg.Host)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, "missing")
	require.ErrorIs(t, err, adapter.ErrValidation)
	assert.True(t, IsMissing(err))
	assert.EqualError(t, err, "Failed to load configuration file: "+filepath.Join(dir, "missing.yaml"))

	writeConfig(t, dir, "partial.yaml", "driver: mysql\n")
	_, err = Load(dir, "partial")
	assert.EqualError(t, err, "Missing required configuration: host, database, username")
	assert.False(t, IsMissing(err))

	writeConfig(t, dir, "oracle.yaml", "driver: oracle\n")
	_, err = Load(dir, "oracle")
	assert.EqualError(t, err, "Unsupported driver: oracle")

	writeConfig(t, dir, "broken.yaml", "driver: [mysql\n")
	_, err = Load(dir, "broken")
	assert.ErrorContains(t, err, "parse config")

	writeConfig(t, dir, "inject.yaml", "host: localhost\ndatabase: app; drop\nusername: root\n")
	_, err = Load(dir, "inject")
	assert.ErrorIs(t, err, adapter.ErrValidation)
}

func TestNamesAndExists(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "b.yaml", "")
	writeConfig(t, dir, "a.yml", "")
	writeConfig(t, dir, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.yaml"), 0o700))

	names, err := Names(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	assert.True(t, Exists(dir, "a"))
	assert.False(t, Exists(dir, "notes"))
	assert.False(t, Exists(dir, "c"))
}

func TestDir(t *testing.T) {
	t.Setenv(DirEnv, "")
	assert.Equal(t, DefaultDir, Dir(""))
	t.Setenv(DirEnv, "/etc/dbtool")
	assert.Equal(t, "/etc/dbtool", Dir(""))
	assert.Equal(t, "./mine", Dir("./mine"))
}
