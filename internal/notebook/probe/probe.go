// Package probe inspects candidate data directories before a switch.
package probe

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/example/cmd-notebook/internal/notebook/paths"
	"github.com/example/cmd-notebook/internal/notebook/storage"
	"github.com/example/cmd-notebook/internal/notebook/validator"
)

// Kind is the outcome of classifying a directory.
type Kind int

const (
	EmptyDir Kind = iota + 1
	HasExistingData
	Invalid
)

func (k Kind) String() string {
	switch k {
	case EmptyDir:
		return "emptyDir"
	case HasExistingData:
		return "hasExistingData"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Reasons reported with Invalid.
const (
	ReasonInvalidPath  = "invalid path"
	ReasonCannotCreate = "cannot create directory"
	ReasonNotDirectory = "not a directory"
	ReasonNotWritable  = "not writable"
)

// UnknownTime is reported when a data file's modification time cannot be read.
const UnknownTime = "unknown"

// TimeLayout formats LastModified in local time.
const TimeLayout = "2006-01-02 15:04:05"

const markerFileName = ".write_test"

// Classification is the result of probing a directory. Path is the
// normalized directory that was probed; it is empty for an invalid path.
type Classification struct {
	Kind         Kind
	Path         string
	LastModified string
	Reason       string
}

// MarshalJSON renders the tagged form consumed by front ends:
// {"type":"hasExistingData","lastModified":"..."}.
func (c Classification) MarshalJSON() ([]byte, error) {
	out := map[string]string{"type": c.Kind.String()}
	switch c.Kind {
	case HasExistingData:
		out["lastModified"] = c.LastModified
	case Invalid:
		out["reason"] = c.Reason
	}
	return json.Marshal(out)
}

// Prober checks whether directories can hold the data file.
type Prober struct {
	storage   *storage.Storage
	validator *validator.Validator
	logger    *slog.Logger
}

// New creates a Prober.
func New(stor *storage.Storage, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{storage: stor, validator: validator.New(), logger: logger}
}

// IsWritable creates path if missing and then proves it accepts writes by
// writing and removing a marker file.
func (p *Prober) IsWritable(path string) bool {
	exists, err := p.storage.Exists(path)
	if err != nil {
		return false
	}
	if !exists {
		if err := p.storage.MkdirAll(path); err != nil {
			p.logger.Debug("writability check: mkdir failed", "path", path, "error", err)
			return false
		}
	}
	marker := filepath.Join(path, markerFileName)
	if err := p.storage.WriteFile(marker, []byte("test")); err != nil {
		p.logger.Debug("writability check: write failed", "path", path, "error", err)
		return false
	}
	if err := p.storage.Remove(marker); err != nil {
		p.logger.Debug("writability check: remove failed", "path", path, "error", err)
		return false
	}
	return true
}

// Classify reports whether path is unusable, empty, or already holds a data
// file. The path is trimmed, cleaned and made absolute before any filesystem
// access, and a missing directory is created as a side effect.
func (p *Prober) Classify(path string) Classification {
	dir, err := p.validator.NormalizeDir(path)
	if err != nil {
		p.logger.Debug("classify: rejected path", "path", path, "error", err)
		return Classification{Kind: Invalid, Reason: ReasonInvalidPath}
	}
	invalid := func(reason string) Classification {
		return Classification{Kind: Invalid, Path: dir, Reason: reason}
	}

	exists, err := p.storage.Exists(dir)
	if err != nil {
		return invalid(ReasonCannotCreate)
	}
	if !exists {
		if err := p.storage.MkdirAll(dir); err != nil {
			return invalid(ReasonCannotCreate)
		}
	}

	if isDir, err := p.storage.IsDir(dir); err != nil || !isDir {
		return invalid(ReasonNotDirectory)
	}

	if !p.IsWritable(dir) {
		return invalid(ReasonNotWritable)
	}

	dataFile := paths.DataFilePath(dir)
	if ok, _ := p.storage.Exists(dataFile); !ok {
		return Classification{Kind: EmptyDir, Path: dir}
	}
	return Classification{Kind: HasExistingData, Path: dir, LastModified: p.lastModified(dataFile)}
}

func (p *Prober) lastModified(path string) string {
	info, err := p.storage.Stat(path)
	if err != nil || info.ModTime().IsZero() {
		return UnknownTime
	}
	return info.ModTime().Local().Format(TimeLayout)
}
