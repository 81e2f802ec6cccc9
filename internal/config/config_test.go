package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestNewDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := New(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, filepath.Join(dir, "tasks.db"), cfg.SQLitePath)
	assert.Equal(t, BlobLocal, cfg.BlobStore)
	assert.Equal(t, filepath.Join(dir, "blobs"), cfg.BlobDir)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.APITimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfigDirUsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", AppName), DefaultConfigDir())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFile), `
backend: postgres
database_url: postgres://localhost/tasks
blob_store: none
api_timeout: 10s
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "postgres://localhost/tasks", cfg.DatabaseURL)
	assert.Equal(t, BlobNone, cfg.BlobStore)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFile), "listen_addr: 127.0.0.1:7000\ngcs_bucket: from-file\n")
	writeFile(t, filepath.Join(dir, EnvFile), "TASKTRACK_LISTEN_ADDR=127.0.0.1:7001\nTASKTRACK_GCS_BUCKET=from-dotenv\nOTHER=ignored\n")
	t.Setenv("TASKTRACK_LISTEN_ADDR", "127.0.0.1:7002")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7002", cfg.ListenAddr)
	assert.Equal(t, "from-dotenv", cfg.GCSBucket)
	_, set := os.LookupEnv("TASKTRACK_GCS_BUCKET")
	assert.False(t, set, "dotenv must not leak into the process environment")
}

func TestLoadWithoutFiles(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ConfigFile), "backend: [unterminated\n")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Backend:    BackendSQLite,
			SQLitePath: "tasks.db",
			BlobStore:  BlobLocal,
			BlobDir:    "blobs",
			APITimeout: time.Second,
			SessionTTL: time.Hour,
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Backend = "mysql" }, `unknown backend "mysql"`},
		{"postgres without url", func(c *Config) { c.Backend = BackendPostgres }, "database_url is required"},
		{"gcs without bucket", func(c *Config) { c.BlobStore = BlobGCS }, "gcs_bucket is required"},
		{"unknown blob store", func(c *Config) { c.BlobStore = "s3" }, `unknown blob_store "s3"`},
		{"no blobs", func(c *Config) { c.BlobStore = BlobNone; c.BlobDir = "" }, ""},
		{"zero timeout", func(c *Config) { c.APITimeout = 0 }, "api_timeout must be positive"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "session_ttl must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFilesBaseURL(t *testing.T) {
	cfg := &Config{ListenAddr: "127.0.0.1:8080"}
	assert.Equal(t, "http://127.0.0.1:8080/files", cfg.FilesBaseURL())

	cfg.PublicBaseURL = "https://tasks.example.com/files/"
	assert.Equal(t, "https://tasks.example.com/files", cfg.FilesBaseURL())
}

func TestPathsAndEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", AppName)
	cfg := &Config{Dir: dir}

	assert.Equal(t, filepath.Join(dir, SessionFile), cfg.SessionPath())
	assert.Equal(t, filepath.Join(dir, KeyFile), cfg.KeyPath())
	assert.False(t, cfg.HasSession())

	require.NoError(t, cfg.EnsureDir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	writeFile(t, cfg.SessionPath(), `{"token":"x"}`)
	assert.True(t, cfg.HasSession())
}
