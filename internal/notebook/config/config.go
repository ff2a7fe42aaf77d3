// Package config loads and persists the application configuration: the
// active data directory and the backup retention count.
package config

import (
	"encoding/json"
	"io"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/example/cmd-notebook/internal/notebook/domain"
	"github.com/example/cmd-notebook/internal/notebook/paths"
	"github.com/example/cmd-notebook/internal/notebook/storage"
)

// DefaultBackupCount is the retention used when the file does not set one.
const DefaultBackupCount = 10

// Config is the persisted application configuration.
type Config struct {
	DataDir     string `json:"data_dir"`
	BackupCount int    `json:"backup_count"`
}

// Validate validates the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.BackupCount, validation.Min(0)),
	)
}

// Store reads and writes app_config.json. Nothing is cached: every Load goes
// back to disk so external edits are picked up by the next operation.
type Store struct {
	storage  *storage.Storage
	resolver *paths.Resolver
	logger   *slog.Logger
}

// New creates a configuration Store.
func New(stor *storage.Storage, resolver *paths.Resolver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{storage: stor, resolver: resolver, logger: logger}
}

// Path returns the configuration file path.
func (s *Store) Path() (string, error) {
	return s.resolver.ConfigFilePath()
}

// Load reads the configuration, creating and persisting the defaults on
// first run. An empty data_dir is replaced by the platform default in the
// returned value only.
func (s *Store) Load() (Config, error) {
	path, err := s.resolver.ConfigFilePath()
	if err != nil {
		return Config{}, err
	}
	s.logger.Debug("config path resolved", "path", path)

	exists, err := s.storage.Exists(path)
	if err != nil {
		return Config{}, domain.New(domain.ErrConfigCorrupt, path, err)
	}
	if !exists {
		return s.bootstrap(path)
	}

	data, err := s.storage.ReadFile(path)
	if err != nil {
		return Config{}, domain.New(domain.ErrConfigCorrupt, path, err)
	}
	s.logger.Debug("config loaded", "path", path, "bytes", len(data))

	cfg := Config{BackupCount: DefaultBackupCount}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, domain.New(domain.ErrConfigCorrupt, path, err)
	}

	if cfg.DataDir == "" {
		def, err := s.resolver.DefaultDataDir()
		if err != nil {
			return Config{}, err
		}
		cfg.DataDir = def
		s.logger.Debug("config data_dir empty, using default", "data_dir", def)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, domain.New(domain.ErrConfigCorrupt, path, err)
	}
	return cfg, nil
}

func (s *Store) bootstrap(path string) (Config, error) {
	def, err := s.resolver.DefaultDataDir()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{DataDir: def, BackupCount: DefaultBackupCount}
	if err := s.Save(cfg); err != nil {
		return Config{}, err
	}
	s.logger.Info("default config created", "path", path, "data_dir", def)
	return cfg, nil
}

// Save writes cfg as indented JSON through a temp file and rename.
func (s *Store) Save(cfg Config) error {
	path, err := s.resolver.ConfigFilePath()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return domain.New(domain.ErrConfigWriteFailed, path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return domain.New(domain.ErrConfigWriteFailed, path, err)
	}
	if err := s.storage.WriteFileAtomic(path, data); err != nil {
		return domain.New(domain.ErrConfigWriteFailed, path, err)
	}
	s.logger.Debug("config saved", "path", path, "data_dir", cfg.DataDir, "backup_count", cfg.BackupCount)
	return nil
}
