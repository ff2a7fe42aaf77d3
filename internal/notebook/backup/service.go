package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/example/cmd-notebook/internal/notebook/domain"
	"github.com/example/cmd-notebook/internal/notebook/paths"
	"github.com/example/cmd-notebook/internal/notebook/storage"
)

// TimestampLayout is the local-time suffix of a backup file name.
const TimestampLayout = "20060102_150405"

const backupExt = ".json"

// Entry describes one backup file.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// Service handles timestamped backups of the data file and their retention.
type Service struct {
	storage *storage.Storage
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a new backup Service.
func New(storage *storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		storage: storage,
		now:     time.Now,
		logger:  logger,
	}
}

// SetNow allows overriding the clock for testing.
func (s *Service) SetNow(now func() time.Time) {
	if now == nil {
		s.now = time.Now
		return
	}
	s.now = now
}

// FileName returns the backup file name for a backup taken at t.
func FileName(t time.Time) string {
	return paths.BackupPrefix + "_" + t.Local().Format(TimestampLayout) + backupExt
}

// IsBackupName reports whether name follows the backup naming pattern.
func IsBackupName(name string) bool {
	return strings.HasPrefix(name, paths.BackupPrefix+"_") && strings.HasSuffix(name, backupExt)
}

// BackupIfChanged preserves the file at oldPath before it is replaced by
// newContent.
//
// Nothing happens when oldPath does not exist or already holds exactly
// newContent, so re-saving unchanged state never adds backups. Otherwise the
// old file is copied into backupDir under a timestamped name and the
// directory is pruned down to retention entries. Pruning problems are not
// reported.
func (s *Service) BackupIfChanged(oldPath string, newContent []byte, backupDir string, retention int) error {
	current, err := s.storage.ReadFile(oldPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return domain.New(domain.ErrBackupFailed, oldPath, err)
	}
	if bytes.Equal(current, newContent) {
		s.logger.Debug("content unchanged, skipping backup", "path", oldPath)
		return nil
	}

	if _, err := s.BackupFile(oldPath, backupDir); err != nil {
		return err
	}
	s.Prune(backupDir, retention)
	return nil
}

// BackupFile unconditionally copies source into backupDir and returns the
// new backup's path, or "" when source does not exist.
//
// Two backups taken within the same second share a name; the later one
// replaces the earlier.
func (s *Service) BackupFile(source, backupDir string) (string, error) {
	if exists, err := s.storage.Exists(source); err != nil {
		return "", domain.New(domain.ErrBackupFailed, source, err)
	} else if !exists {
		return "", nil
	}

	if err := s.storage.MkdirAll(backupDir); err != nil {
		return "", domain.New(domain.ErrBackupFailed, backupDir, fmt.Errorf("create backup directory: %w", err))
	}

	now := s.now()
	backupPath := filepath.Join(backupDir, FileName(now))
	if err := s.storage.CopyFile(source, backupPath); err != nil {
		return "", domain.New(domain.ErrBackupFailed, backupPath, err)
	}
	if err := s.storage.Chtimes(backupPath, now, now); err != nil {
		s.logger.Warn("failed to set backup timestamp",
			"backup_path", backupPath,
			"error", err)
	}

	s.logger.Info("backup created",
		"path", source,
		"backup_path", backupPath)
	return backupPath, nil
}

// List returns the backups in backupDir, newest first. A missing directory
// yields an empty list.
func (s *Service) List(backupDir string) ([]Entry, error) {
	infos, err := s.storage.ReadDir(backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !IsBackupName(info.Name()) {
			continue
		}
		entries = append(entries, Entry{
			Name:    info.Name(),
			Path:    filepath.Join(backupDir, info.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].Name > entries[j].Name
		}
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}

// Prune keeps the retention most recently modified backups in backupDir and
// deletes the rest. It returns the number of files removed; failures to read
// the directory or delete a file are logged and otherwise ignored.
func (s *Service) Prune(backupDir string, retention int) int {
	if retention < 0 {
		retention = 0
	}
	entries, err := s.List(backupDir)
	if err != nil {
		s.logger.Warn("backup prune skipped", "backup_dir", backupDir, "error", err)
		return 0
	}
	if len(entries) <= retention {
		return 0
	}

	removed := 0
	for _, entry := range entries[retention:] {
		if err := s.storage.Remove(entry.Path); err != nil {
			s.logger.Warn("failed to delete stale backup",
				"backup_path", entry.Path,
				"error", err)
			continue
		}
		removed++
	}
	s.logger.Debug("backups pruned",
		"backup_dir", backupDir,
		"retention", retention,
		"removed", removed)
	return removed
}
