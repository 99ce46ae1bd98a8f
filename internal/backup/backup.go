package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"
)

var (
	ErrDisabled   = errors.New("backup not configured: S3 bucket, credentials and passphrase are required")
	ErrInProgress = errors.New("backup already in progress")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration.
type Config struct {
	S3            S3Config
	Passphrase    string
	RetentionDays int
	// Prefix is prepended to every object key. Defaults to "pawlog".
	Prefix string
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager takes encrypted snapshots of the database and keeps them in
// S3-compatible storage.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback
	logger   *slog.Logger

	db     *sql.DB
	store  *Store
	client s3Client
	now    func() time.Time
}

// NewManager creates a backup manager. It starts disabled unless the S3
// settings and passphrase are all present.
func NewManager(cfg Config, db *sql.DB, store *Store, logger *slog.Logger, callback StatusCallback) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "pawlog"
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:      cfg,
		db:       db,
		store:    store,
		callback: callback,
		logger:   logger.With("component", "backup"),
		status:   Status{State: StateDisabled},
		now:      func() time.Time { return time.Now().UTC() },
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Enabled reports whether backups can run.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

// Run takes a backup every interval and prunes expired ones until ctx is
// done. It returns immediately when backups are disabled or interval is zero.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || !m.Enabled() {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.RunNow(ctx); err != nil {
				m.logger.Error("scheduled backup failed", "error", err)
				continue
			}
			if n, err := m.Cleanup(ctx); err != nil {
				m.logger.Error("backup cleanup failed", "error", err)
			} else if n > 0 {
				m.logger.Info("expired backups removed", "count", n)
			}
		}
	}
}

// RunNow snapshots the database, encrypts the snapshot and uploads it.
func (m *Manager) RunNow(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	client := m.client
	if client == nil {
		m.mu.Unlock()
		return nil, ErrDisabled
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return nil, ErrInProgress
	}
	m.status.InProgress = true
	bucket, prefix, passphrase := m.cfg.S3.Bucket, m.cfg.Prefix, m.cfg.Passphrase
	m.mu.Unlock()

	m.setStatus(Status{State: StateRunning, InProgress: true})

	started := m.now()
	filename := fmt.Sprintf("backup-%s.db.enc", started.Format("2006-01-02T150405.000Z"))
	key := prefix + "/" + filename

	record, err := m.store.Create(ctx, filename, key)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	fail := func(stage string, err error) (*Record, error) {
		err = fmt.Errorf("%s: %w", stage, err)
		if uerr := m.store.UpdateStatus(context.WithoutCancel(ctx), record.ID, RunFailed, err.Error()); uerr != nil {
			m.logger.Warn("record backup failure", "backup_id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return fail("snapshot", err)
	}
	sealed, err := Seal(snapshot, passphrase)
	if err != nil {
		return fail("encrypt", err)
	}

	if err := m.store.UpdateStatus(ctx, record.ID, RunUploading, ""); err != nil {
		return fail("mark uploading", err)
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return fail("upload to s3", err)
	}

	size := int64(len(sealed))
	if err := m.store.MarkCompleted(ctx, record.ID, size); err != nil {
		return fail("mark completed", err)
	}

	done := m.now()
	m.setStatus(Status{State: StateIdle, LastBackup: &done})
	m.logger.Info("backup completed", "backup_id", record.ID, "key", key, "bytes", size,
		"duration", done.Sub(started))

	return m.store.Get(ctx, record.ID)
}

// snapshot writes a consistent copy of the live database with VACUUM INTO
// and returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "pawlog-backup-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	return os.ReadFile(path)
}

// Cleanup deletes backups older than the retention period, returning how
// many were removed. Object deletion failures are logged and skipped.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	retention := m.cfg.RetentionDays
	m.mu.RUnlock()

	if client == nil {
		return 0, nil
	}

	before := m.now().AddDate(0, 0, -retention)
	keys, err := m.store.DeleteOlderThan(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("delete old backups: %w", err)
	}

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}

// List returns recent backup records.
func (m *Manager) List(ctx context.Context, limit int) ([]Record, error) {
	return m.store.List(ctx, limit)
}

// Restore downloads and decrypts a backup into a new database file at dst,
// verifying its integrity first. The live database is never touched; dst
// must not exist.
func (m *Manager) Restore(ctx context.Context, id int64, dst string) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()

	if client == nil {
		return ErrDisabled
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("restore target %s already exists", dst)
	}

	record, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != RunCompleted {
		return fmt.Errorf("backup %d is %s, not completed", id, record.Status)
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	sealed, err := io.ReadAll(result.Body)
	result.Body.Close()
	if err != nil {
		return fmt.Errorf("read backup object: %w", err)
	}

	plain, err := Open(sealed, passphrase)
	if err != nil {
		return err
	}

	tmp := dst + ".partial"
	if err := os.WriteFile(tmp, plain, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	defer os.Remove(tmp)

	if err := checkIntegrity(ctx, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("move restored db: %w", err)
	}

	m.logger.Info("backup restored", "backup_id", id, "path", dst)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}
	return nil
}
