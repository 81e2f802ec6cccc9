// Package config handles the XDG configuration directory and settings.
//
// Settings are resolved from, highest priority first: TASKTRACK_* environment
// variables, a .env file in the config directory, config.yaml in the config
// directory, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName is the application directory name.
	AppName = "tasktrack"

	// ConfigFile is the settings filename.
	ConfigFile = "config.yaml"

	// EnvFile is the optional dotenv filename.
	EnvFile = ".env"

	// SessionFile is the stored session token filename.
	SessionFile = "session.json"

	// KeyFile holds the generated token signing key when jwt_secret is unset.
	KeyFile = "session.key"

	// EnvPrefix prefixes every environment variable setting.
	EnvPrefix = "TASKTRACK"
)

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Blob store names.
const (
	BlobLocal = "local"
	BlobGCS   = "gcs"
	BlobNone  = "none"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string `mapstructure:"-"`

	// Debug enables debug logging.
	Debug bool `mapstructure:"-"`

	// Quiet suppresses informational output.
	Quiet bool `mapstructure:"-"`

	Backend     string `mapstructure:"backend"`
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	BlobStore      string `mapstructure:"blob_store"`
	BlobDir        string `mapstructure:"blob_dir"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	GCSCredentials string `mapstructure:"gcs_credentials"`

	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
	ListenAddr string        `mapstructure:"listen_addr"`
}

// New creates a Config with defaults only, rooted at configDir.
// If configDir is empty, uses XDG_CONFIG_HOME/tasktrack or $HOME/.config/tasktrack.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir}
	v := viper.New()
	setDefaults(v, dir)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load resolves settings for configDir from every source.
func Load(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}

	v := viper.New()
	setDefaults(v, dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", path, err)
		}
	}

	if err := applyDotEnv(v, filepath.Join(dir, EnvFile)); err != nil {
		return nil, err
	}

	cfg := &Config{Dir: dir}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", filepath.Join(dir, "tasks.db"))
	v.SetDefault("blob_store", BlobLocal)
	v.SetDefault("blob_dir", filepath.Join(dir, "blobs"))
	v.SetDefault("public_base_url", "")
	v.SetDefault("gcs_bucket", "")
	v.SetDefault("gcs_credentials", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("session_ttl", 30*24*time.Hour)
	v.SetDefault("api_timeout", 5*time.Second)
	v.SetDefault("listen_addr", "127.0.0.1:8080")
}

// applyDotEnv reads TASKTRACK_* entries from a dotenv file. Real
// environment variables win; the process environment is not modified.
func applyDotEnv(v *viper.Viper, path string) error {
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid %s: %w", path, err)
	}
	for name, value := range values {
		key, ok := strings.CutPrefix(name, EnvPrefix+"_")
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(strings.ToLower(key), value)
	}
	return nil
}

// Validate checks that the selected backends are fully configured.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSQLite, BackendPostgres)
	}

	switch c.BlobStore {
	case BlobLocal:
		if c.BlobDir == "" {
			return errors.New("blob_dir is required for the local blob store")
		}
	case BlobGCS:
		if c.GCSBucket == "" {
			return errors.New("gcs_bucket is required for the gcs blob store")
		}
	case BlobNone:
	default:
		return fmt.Errorf("unknown blob_store %q (want %s, %s or %s)", c.BlobStore, BlobLocal, BlobGCS, BlobNone)
	}

	if c.APITimeout <= 0 {
		return errors.New("api_timeout must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	return nil
}

// FilesBaseURL returns the base URL local blobs are served from.
func (c *Config) FilesBaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return "http://" + c.ListenAddr + "/files"
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// SessionPath returns the path to the stored session token.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, SessionFile)
}

// KeyPath returns the path to the generated signing key.
func (c *Config) KeyPath() string {
	return filepath.Join(c.Dir, KeyFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasSession checks if a session token file exists.
func (c *Config) HasSession() bool {
	_, err := os.Stat(c.SessionPath())
	return err == nil
}
