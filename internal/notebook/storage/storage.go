package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// TempSuffix is appended to the canonical path for the intermediate file of
// an atomic write.
const TempSuffix = ".tmp"

const (
	filePerm = 0o600
	dirPerm  = 0o700
)

// Storage provides low-level file operations over an afero filesystem.
type Storage struct {
	fs afero.Fs
}

// New creates a new Storage instance.
func New(fs afero.Fs) *Storage {
	return &Storage{fs: fs}
}

// FileSystem returns the underlying filesystem.
func (s *Storage) FileSystem() afero.Fs {
	return s.fs
}

// ValidatePathSafety checks that the path is not a symlink.
// It returns nil if the path doesn't exist or is a regular file/directory.
func (s *Storage) ValidatePathSafety(path string) error {
	if lstater, ok := s.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to check path: %w", err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("refusing to replace symlink: %s", path)
		}
	}
	return nil
}

// WriteFileAtomic writes data to path through a sibling ".tmp" file and a
// rename, so readers observe either the previous or the complete new file.
func (s *Storage) WriteFileAtomic(path string, data []byte) error {
	return s.replace(path, bytes.NewReader(data))
}

// CopyFile replaces dst with the contents of src the same way
// WriteFileAtomic does.
func (s *Storage) CopyFile(src, dst string) (err error) {
	source, err := s.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := source.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
	}()
	return s.replace(dst, source)
}

// replace streams r into path+TempSuffix, syncs it and renames it over
// path. The temp file is removed on any failure.
func (s *Storage) replace(path string, r io.Reader) error {
	if err := s.ValidatePathSafety(path); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp := path + TempSuffix
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	var stepErr error
	if _, err := io.Copy(f, r); err != nil {
		stepErr = fmt.Errorf("write temp file: %w", err)
	} else if err := f.Sync(); err != nil {
		stepErr = fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil && stepErr == nil {
		stepErr = fmt.Errorf("close temp file: %w", err)
	}
	if stepErr == nil {
		if err := s.fs.Rename(tmp, path); err != nil {
			stepErr = fmt.Errorf("atomic rename: %w", err)
		}
	}
	if stepErr != nil {
		_ = s.fs.Remove(tmp)
		return stepErr
	}
	return nil
}

// ReadFile reads the entire file.
func (s *Storage) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// WriteFile writes data to a file in place. Used for scratch files only;
// canonical files go through WriteFileAtomic.
func (s *Storage) WriteFile(path string, data []byte) error {
	return afero.WriteFile(s.fs, path, data, filePerm)
}

// Exists checks if a path exists.
func (s *Storage) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// IsDir reports whether path exists and is a directory.
func (s *Storage) IsDir(path string) (bool, error) {
	return afero.IsDir(s.fs, path)
}

// Stat returns file information.
func (s *Storage) Stat(path string) (os.FileInfo, error) {
	return s.fs.Stat(path)
}

// MkdirAll creates directory with secure permissions.
func (s *Storage) MkdirAll(path string) error {
	return s.fs.MkdirAll(path, dirPerm)
}

// ReadDir reads directory contents.
func (s *Storage) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(s.fs, path)
}

// Remove deletes a file.
func (s *Storage) Remove(path string) error {
	return s.fs.Remove(path)
}

// Chtimes changes file access and modification times.
func (s *Storage) Chtimes(path string, atime, mtime time.Time) error {
	return s.fs.Chtimes(path, atime, mtime)
}
