// Package notebook persists the notebook state blob, keeps timestamped
// backups of it, and moves it between data directories.
package notebook

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/example/cmd-notebook/internal/notebook/backup"
	"github.com/example/cmd-notebook/internal/notebook/config"
	"github.com/example/cmd-notebook/internal/notebook/domain"
	"github.com/example/cmd-notebook/internal/notebook/paths"
	"github.com/example/cmd-notebook/internal/notebook/probe"
	"github.com/example/cmd-notebook/internal/notebook/storage"
	"github.com/example/cmd-notebook/internal/notebook/validator"
)

// Manager coordinates state persistence, backups and data directory
// switches. Configuration is re-read from disk by every operation.
//
// A Manager is not safe for concurrent use; callers must not overlap
// SaveState calls.
type Manager struct {
	fs        afero.Fs
	storage   *storage.Storage
	resolver  *paths.Resolver
	config    *config.Store
	prober    *probe.Prober
	backups   *backup.Service
	validator *validator.Validator
	logger    *slog.Logger
	now       func() time.Time
	phase     Phase
}

// DataDirInfo is a read-only snapshot of the active data directory.
type DataDirInfo struct {
	Path           string `json:"path"`
	IsDefault      bool   `json:"isDefault"`
	DataFileExists bool   `json:"dataFileExists"`
	IsWritable     bool   `json:"isWritable"`
	BackupCount    int    `json:"backupCount"`
}

// NewManager creates a Manager over fs using platform for the standard
// directories. A nil logger discards output.
func NewManager(fs afero.Fs, platform paths.Platform, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	stor := storage.New(fs)
	resolver := paths.New(platform)
	return &Manager{
		fs:        fs,
		storage:   stor,
		resolver:  resolver,
		config:    config.New(stor, resolver, logger),
		prober:    probe.New(stor, logger),
		backups:   backup.New(stor, logger),
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
		phase:     PhaseIdle,
	}
}

// SetNow overrides the clock used for backup names and the switch journal.
func (m *Manager) SetNow(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.now = now
	m.backups.SetNow(now)
}

// FileSystem returns the underlying filesystem.
func (m *Manager) FileSystem() afero.Fs {
	return m.fs
}

// Logger returns the logger shared by the Manager's components.
func (m *Manager) Logger() *slog.Logger {
	return m.logger
}

// Config returns the configuration store.
func (m *Manager) Config() *config.Store {
	return m.config
}

// Backups returns the backup service.
func (m *Manager) Backups() *backup.Service {
	return m.backups
}

// Resolver returns the path resolver.
func (m *Manager) Resolver() *paths.Resolver {
	return m.resolver
}

// DataFilePath returns the data file of the configured data directory.
func (m *Manager) DataFilePath() (string, error) {
	cfg, err := m.config.Load()
	if err != nil {
		return "", err
	}
	return paths.DataFilePath(cfg.DataDir), nil
}

// BackupDir returns the backup directory of the configured data directory.
func (m *Manager) BackupDir() (string, error) {
	cfg, err := m.config.Load()
	if err != nil {
		return "", err
	}
	return paths.BackupDirPath(cfg.DataDir), nil
}

// SaveState atomically replaces the data file with content.
//
// When the on-disk content differs from content it is first copied into
// the backup directory and old backups beyond the configured retention are
// pruned. A failed backup aborts the save and leaves the data file as it was.
func (m *Manager) SaveState(content string) error {
	cfg, err := m.config.Load()
	if err != nil {
		return err
	}
	dataFile := paths.DataFilePath(cfg.DataDir)

	if err := m.storage.MkdirAll(cfg.DataDir); err != nil {
		return domain.New(domain.ErrDataWriteFailed, cfg.DataDir, err)
	}

	data := []byte(content)
	if err := m.backups.BackupIfChanged(dataFile, data, paths.BackupDirPath(cfg.DataDir), cfg.BackupCount); err != nil {
		return err
	}

	if err := m.storage.WriteFileAtomic(dataFile, data); err != nil {
		return domain.New(domain.ErrDataWriteFailed, dataFile, err)
	}
	m.logger.Debug("state saved", "path", dataFile, "bytes", len(data))
	return nil
}

// LoadState returns the saved state. ok is false when nothing has been
// saved yet.
func (m *Manager) LoadState() (content string, ok bool, err error) {
	cfg, err := m.config.Load()
	if err != nil {
		return "", false, err
	}
	dataFile := paths.DataFilePath(cfg.DataDir)

	if err := m.storage.MkdirAll(cfg.DataDir); err != nil {
		return "", false, domain.New(domain.ErrDataReadFailed, cfg.DataDir, err)
	}

	data, err := m.storage.ReadFile(dataFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, domain.New(domain.ErrDataReadFailed, dataFile, err)
	}
	return string(data), true, nil
}

// DataDirInfo reports the configured data directory and its state.
func (m *Manager) DataDirInfo() (DataDirInfo, error) {
	cfg, err := m.config.Load()
	if err != nil {
		return DataDirInfo{}, err
	}
	def, err := m.resolver.DefaultDataDir()
	if err != nil {
		return DataDirInfo{}, err
	}
	exists, err := m.storage.Exists(paths.DataFilePath(cfg.DataDir))
	if err != nil {
		exists = false
	}
	return DataDirInfo{
		Path:           cfg.DataDir,
		IsDefault:      paths.SameDir(cfg.DataDir, def),
		DataFileExists: exists,
		IsWritable:     m.prober.IsWritable(cfg.DataDir),
		BackupCount:    cfg.BackupCount,
	}, nil
}

// SetBackupCount changes the retention count, keeping the data directory.
func (m *Manager) SetBackupCount(count int) error {
	cfg, err := m.config.Load()
	if err != nil {
		return err
	}
	cfg.BackupCount = count
	return m.config.Save(cfg)
}

// ListBackups returns the backups of the configured data directory, newest
// first.
func (m *Manager) ListBackups() ([]backup.Entry, error) {
	dir, err := m.BackupDir()
	if err != nil {
		return nil, err
	}
	return m.backups.List(dir)
}

// PruneBackups trims the configured backup directory to keep entries and
// returns the number of files removed.
func (m *Manager) PruneBackups(keep int) (int, error) {
	dir, err := m.BackupDir()
	if err != nil {
		return 0, err
	}
	return m.backups.Prune(dir, keep), nil
}
