// Package config resolves PAWLOG_* environment variables, optionally seeded
// from a .env file, into a Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const appName = "pawlog"

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	Timezone  *time.Location
	PageSize  int

	SyncMode          string
	SyncTimeout       time.Duration
	SyncRetries       int
	ReconcileInterval time.Duration

	JWTSecret      string
	WriteRateLimit int

	RedisAddr     string
	RedisPassword string

	S3Endpoint          string
	S3Bucket            string
	S3Region            string
	S3AccessKey         string
	S3SecretKey         string
	BackupPassphrase    string
	BackupInterval      time.Duration
	BackupRetentionDays int
}

// LoadDefaults returns the configuration used when no variable is set.
func LoadDefaults() Config {
	return Config{
		Port:                "8080",
		DBPath:              DefaultDBPath(),
		LogLevel:            "info",
		LogFormat:           "text",
		Timezone:            time.Local,
		PageSize:            20,
		SyncMode:            "async",
		SyncTimeout:         30 * time.Second,
		SyncRetries:         8,
		WriteRateLimit:      120,
		BackupRetentionDays: 30,
	}
}

// DefaultDBPath places the database under the XDG data home.
func DefaultDBPath() string {
	xdg.Reload()

	dataHome := xdg.DataHome
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), appName, appName+".db")
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, appName, appName+".db")
}

// Load reads a .env file when present, then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting at LoadDefaults.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := LoadDefaults()
	r := reader{lookup: lookup}

	r.str("PAWLOG_PORT", &cfg.Port)
	r.str("PAWLOG_DB_PATH", &cfg.DBPath)
	r.str("PAWLOG_LOG_LEVEL", &cfg.LogLevel)
	r.str("PAWLOG_LOG_FORMAT", &cfg.LogFormat)
	r.location("PAWLOG_TIMEZONE", &cfg.Timezone)
	r.positive("PAWLOG_PAGE_SIZE", &cfg.PageSize)

	r.str("PAWLOG_SYNC_MODE", &cfg.SyncMode)
	r.duration("PAWLOG_SYNC_TIMEOUT", &cfg.SyncTimeout)
	r.positive("PAWLOG_SYNC_RETRIES", &cfg.SyncRetries)
	r.duration("PAWLOG_RECONCILE_INTERVAL", &cfg.ReconcileInterval)

	r.str("PAWLOG_JWT_SECRET", &cfg.JWTSecret)
	r.nonNegative("PAWLOG_WRITE_RATE_LIMIT", &cfg.WriteRateLimit)

	r.str("PAWLOG_REDIS_ADDR", &cfg.RedisAddr)
	r.str("PAWLOG_REDIS_PASSWORD", &cfg.RedisPassword)

	r.str("PAWLOG_S3_ENDPOINT", &cfg.S3Endpoint)
	r.str("PAWLOG_S3_BUCKET", &cfg.S3Bucket)
	r.str("PAWLOG_S3_REGION", &cfg.S3Region)
	r.str("PAWLOG_S3_ACCESS_KEY", &cfg.S3AccessKey)
	r.str("PAWLOG_S3_SECRET_KEY", &cfg.S3SecretKey)
	r.str("PAWLOG_BACKUP_PASSPHRASE", &cfg.BackupPassphrase)
	r.duration("PAWLOG_BACKUP_INTERVAL", &cfg.BackupInterval)
	r.positive("PAWLOG_BACKUP_RETENTION_DAYS", &cfg.BackupRetentionDays)

	switch cfg.SyncMode {
	case "async", "inline":
	default:
		r.fail("PAWLOG_SYNC_MODE", fmt.Errorf("must be async or inline, got %q", cfg.SyncMode))
	}

	return cfg, errors.Join(r.errs...)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// LocalMode reports whether the server runs without token authentication.
func (c Config) LocalMode() bool {
	return c.JWTSecret == ""
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
}

func (r *reader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *reader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	if d < 0 {
		r.fail(key, errors.New("must not be negative"))
		return
	}
	*dst = d
}

func (r *reader) integer(key string, dst *int, lo int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	if n < lo {
		r.fail(key, fmt.Errorf("must be at least %d", lo))
		return
	}
	*dst = n
}

func (r *reader) positive(key string, dst *int)    { r.integer(key, dst, 1) }
func (r *reader) nonNegative(key string, dst *int) { r.integer(key, dst, 0) }

func (r *reader) location(key string, dst **time.Location) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = loc
}
