package domain

import (
	"errors"
	"strings"
)

// Error kinds. Callers use errors.Is against these to tell failures apart;
// the wrapping *Error carries the context needed for a readable message.
var (
	ErrPlatformPathUnavailable = errors.New("cannot resolve the application directory")
	ErrConfigCorrupt           = errors.New("configuration file cannot be read")
	ErrConfigWriteFailed       = errors.New("configuration file cannot be saved")
	ErrDataReadFailed          = errors.New("data file cannot be read")
	ErrDataWriteFailed         = errors.New("data file cannot be saved")
	ErrBackupFailed            = errors.New("backup cannot be created")
	ErrDirSwitchFailed         = errors.New("data directory switch did not complete")
)

// Stage names the step of a directory switch that failed.
type Stage string

const (
	StageNone   Stage = ""
	StageCopy   Stage = "copy"
	StageBackup Stage = "backup"
	StageConfig Stage = "config"
)

// Error is the error type returned at component boundaries.
type Error struct {
	Kind  error
	Stage Stage
	Path  string
	Err   error
}

// New wraps err with the given kind and path.
func New(kind error, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// SwitchFailed wraps err as a directory switch failure at stage.
func SwitchFailed(stage Stage, path string, err error) *Error {
	return &Error{Kind: ErrDirSwitchFailed, Stage: stage, Path: path, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("storage error")
	}
	if e.Stage != StageNone {
		b.WriteString(" (")
		b.WriteString(string(e.Stage))
		b.WriteString(" step)")
	}
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// StageOf returns the switch stage recorded in err, if any.
func StageOf(err error) Stage {
	var de *Error
	if errors.As(err, &de) {
		if de.Stage != StageNone {
			return de.Stage
		}
		if de.Err != nil {
			return StageOf(de.Err)
		}
	}
	return StageNone
}

// Directory path validation errors.
var (
	ErrDirPathEmpty        = errors.New("directory path cannot be empty")
	ErrDirPathNullByte     = errors.New("directory path contains null byte")
	ErrDirPathControlChars = errors.New("directory path contains control characters")
)
