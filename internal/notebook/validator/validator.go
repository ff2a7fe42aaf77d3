package validator

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/example/cmd-notebook/internal/notebook/domain"
)

// Validator validates candidate data directory paths before any filesystem
// access is attempted.
type Validator struct{}

// New creates a new Validator instance.
func New() *Validator {
	return &Validator{}
}

// ValidateDir checks that path can name a data directory.
//
// The function rejects:
//   - Empty or whitespace-only paths
//   - Null bytes
//   - Control characters (newlines, tabs, DEL, ...)
//
// Returns (true, nil) if valid, or (false, error) with a descriptive error.
func (v *Validator) ValidateDir(path string) (bool, error) {
	trimmed := strings.TrimSpace(path)
	if len(trimmed) == 0 {
		return false, domain.ErrDirPathEmpty
	}
	if strings.ContainsRune(trimmed, 0) {
		return false, domain.ErrDirPathNullByte
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return false, domain.ErrDirPathControlChars
		}
	}
	return true, nil
}

// NormalizeDir trims whitespace, validates the path and returns it cleaned
// and absolute. Relative paths resolve against the working directory.
func (v *Validator) NormalizeDir(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if ok, err := v.ValidateDir(trimmed); !ok {
		return "", err
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", trimmed, err)
	}
	return abs, nil
}
