package paths

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/example/cmd-notebook/internal/notebook/domain"
)

// File and directory name constants for the notebook storage layout.
const (
	AppName         = "cmd-notebook"
	ConfigFileName  = "app_config.json"
	JournalFileName = "switch_journal.json"
	DataFileName    = "cmd_notebook.json"
	BackupDirName   = ".backup"
	BackupPrefix    = "cmd_notebook"
)

// Platform supplies the host's standard application directories.
type Platform interface {
	// ConfigDir returns the directory holding the application configuration.
	ConfigDir() (string, error)
	// DataDir returns the default directory for application data.
	DataDir() (string, error)
}

// XDGPlatform resolves directories through the XDG base directories
// (with the per-OS equivalents provided by adrg/xdg).
type XDGPlatform struct {
	App string
}

// NewXDGPlatform returns a Platform for the given application name.
func NewXDGPlatform(app string) XDGPlatform {
	return XDGPlatform{App: app}
}

func (p XDGPlatform) ConfigDir() (string, error) {
	return p.join(xdg.ConfigHome, "config")
}

func (p XDGPlatform) DataDir() (string, error) {
	return p.join(xdg.DataHome, "data")
}

func (p XDGPlatform) join(base, kind string) (string, error) {
	if strings.TrimSpace(base) == "" || p.App == "" {
		return "", domain.New(domain.ErrPlatformPathUnavailable, kind, nil)
	}
	return filepath.Join(base, p.App), nil
}

// StaticPlatform returns fixed directories. Empty fields are reported as
// unavailable.
type StaticPlatform struct {
	Config string
	Data   string
}

func (p StaticPlatform) ConfigDir() (string, error) {
	if p.Config == "" {
		return "", domain.New(domain.ErrPlatformPathUnavailable, "config", nil)
	}
	return p.Config, nil
}

func (p StaticPlatform) DataDir() (string, error) {
	if p.Data == "" {
		return "", domain.New(domain.ErrPlatformPathUnavailable, "data", nil)
	}
	return p.Data, nil
}

// Resolver derives every storage path from a Platform and a data directory.
type Resolver struct {
	platform Platform
}

// New creates a Resolver backed by platform.
func New(platform Platform) *Resolver {
	return &Resolver{platform: platform}
}

// Platform returns the underlying platform.
func (r *Resolver) Platform() Platform {
	return r.platform
}

// DefaultDataDir returns the platform's default data directory.
func (r *Resolver) DefaultDataDir() (string, error) {
	dir, err := r.platform.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Clean(dir), nil
}

// ConfigFilePath returns the path to app_config.json.
func (r *Resolver) ConfigFilePath() (string, error) {
	dir, err := r.platform.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// JournalPath returns the path to the directory-switch journal.
func (r *Resolver) JournalPath() (string, error) {
	dir, err := r.platform.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, JournalFileName), nil
}

// DataFilePath returns the state file inside dataDir.
func DataFilePath(dataDir string) string {
	return filepath.Join(dataDir, DataFileName)
}

// BackupDirPath returns the backup directory inside dataDir.
func BackupDirPath(dataDir string) string {
	return filepath.Join(dataDir, BackupDirName)
}

// SameDir reports whether a and b name the same directory once cleaned.
func SameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
