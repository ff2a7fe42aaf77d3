package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/example/cmd-notebook/internal/notebook/config"
	"github.com/example/cmd-notebook/internal/notebook/domain"
	"github.com/example/cmd-notebook/internal/notebook/paths"
	"github.com/example/cmd-notebook/internal/notebook/probe"
)

// SwitchAction selects what happens to the current data when the data
// directory changes.
type SwitchAction int

const (
	// Cancel leaves everything as it is.
	Cancel SwitchAction = iota
	// CopyToNew copies the current data file into the new directory.
	CopyToNew
	// UseExisting adopts whatever the new directory holds, after backing up
	// the current data file into the old directory's backups.
	UseExisting
)

var switchActionNames = map[SwitchAction]string{
	Cancel:      "Cancel",
	CopyToNew:   "CopyToNew",
	UseExisting: "UseExisting",
}

func (a SwitchAction) String() string {
	if name, ok := switchActionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("SwitchAction(%d)", int(a))
}

// ParseSwitchAction parses "CopyToNew", "UseExisting" or "Cancel",
// ignoring case.
func ParseSwitchAction(s string) (SwitchAction, error) {
	for action, name := range switchActionNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return action, nil
		}
	}
	return Cancel, fmt.Errorf("unknown switch action %q", s)
}

func (a SwitchAction) MarshalText() ([]byte, error) {
	name, ok := switchActionNames[a]
	if !ok {
		return nil, fmt.Errorf("unknown switch action %d", int(a))
	}
	return []byte(name), nil
}

func (a *SwitchAction) UnmarshalText(text []byte) error {
	parsed, err := ParseSwitchAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Phase tracks the progress of the most recent directory switch.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseClassified
	PhaseApplying
	PhaseCommitted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseClassified:
		return "classified"
	case PhaseApplying:
		return "applying"
	case PhaseCommitted:
		return "committed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Phase returns the phase reached by the last switch on this Manager.
func (m *Manager) Phase() Phase {
	return m.phase
}

// CheckSwitchDir classifies path as a switch target. The directory is
// created if it does not exist. The returned Path is the normalized form
// SwitchDataDir will act on.
func (m *Manager) CheckSwitchDir(path string) probe.Classification {
	c := m.prober.Classify(path)
	m.phase = PhaseClassified
	m.logger.Debug("switch target classified", "path", path, "type", c.Kind.String())
	return c
}

// SwitchDataDir points the configuration at path after applying action.
//
// Cancel returns immediately. CopyToNew copies the current data file into
// path, overwriting any data file already there; path/.backup is left alone.
// UseExisting backs the current data file up into the old directory's
// backups and copies nothing. Failures carry the stage that failed.
func (m *Manager) SwitchDataDir(path string, action SwitchAction) error {
	if action == Cancel {
		m.logger.Info("directory switch cancelled", "path", path)
		return nil
	}
	if _, ok := switchActionNames[action]; !ok {
		m.phase = PhaseFailed
		return domain.SwitchFailed(domain.StageNone, path, fmt.Errorf("unknown switch action %d", int(action)))
	}

	target, err := m.validator.NormalizeDir(path)
	if err != nil {
		m.phase = PhaseFailed
		return domain.SwitchFailed(domain.StageNone, path, err)
	}

	cfg, err := m.config.Load()
	if err != nil {
		m.phase = PhaseFailed
		return domain.SwitchFailed(domain.StageConfig, target, err)
	}

	m.phase = PhaseApplying
	m.writeJournal(journal{From: cfg.DataDir, To: target, Action: action, StartedAt: m.now()})

	if err := m.applySwitch(cfg, target, action); err != nil {
		m.phase = PhaseFailed
		return err
	}

	from := cfg.DataDir
	cfg.DataDir = target
	if err := m.config.Save(cfg); err != nil {
		m.phase = PhaseFailed
		return domain.SwitchFailed(domain.StageConfig, target, err)
	}

	m.removeJournal()
	m.phase = PhaseCommitted
	m.logger.Info("data directory switched",
		"operation", "switch",
		"action", action.String(),
		"from", from,
		"to", target)
	return nil
}

func (m *Manager) applySwitch(cfg config.Config, target string, action SwitchAction) error {
	current := paths.DataFilePath(cfg.DataDir)

	switch action {
	case CopyToNew:
		if err := m.storage.MkdirAll(target); err != nil {
			return domain.SwitchFailed(domain.StageCopy, target, err)
		}
		if paths.SameDir(cfg.DataDir, target) {
			return nil
		}
		exists, err := m.storage.Exists(current)
		if err != nil {
			return domain.SwitchFailed(domain.StageCopy, current, err)
		}
		if !exists {
			return nil
		}
		dst := paths.DataFilePath(target)
		if err := m.storage.CopyFile(current, dst); err != nil {
			return domain.SwitchFailed(domain.StageCopy, dst, err)
		}
		m.logger.Debug("data file copied", "path", current, "target", dst)
	case UseExisting:
		if _, err := m.backups.BackupFile(current, paths.BackupDirPath(cfg.DataDir)); err != nil {
			return domain.SwitchFailed(domain.StageBackup, current, err)
		}
	}
	return nil
}

// ResetDataDir points the configuration back at the platform default data
// directory, keeping the retention count. When the current directory is not
// the default its data file is backed up there first; nothing is copied.
func (m *Manager) ResetDataDir() error {
	def, err := m.resolver.DefaultDataDir()
	if err != nil {
		return domain.SwitchFailed(domain.StageNone, "", err)
	}
	cfg, err := m.config.Load()
	if err != nil {
		return domain.SwitchFailed(domain.StageConfig, def, err)
	}

	if !paths.SameDir(cfg.DataDir, def) {
		current := paths.DataFilePath(cfg.DataDir)
		if _, err := m.backups.BackupFile(current, paths.BackupDirPath(cfg.DataDir)); err != nil {
			return domain.SwitchFailed(domain.StageBackup, current, err)
		}
	}

	from := cfg.DataDir
	cfg.DataDir = def
	if err := m.config.Save(cfg); err != nil {
		return domain.SwitchFailed(domain.StageConfig, def, err)
	}
	m.logger.Info("data directory reset", "operation", "reset", "from", from, "to", def)
	return nil
}

type journal struct {
	From      string       `json:"from"`
	To        string       `json:"to"`
	Action    SwitchAction `json:"action"`
	StartedAt time.Time    `json:"started_at"`
}

// PendingSwitch describes a directory switch that started but never
// committed.
type PendingSwitch struct {
	From      string       `json:"from"`
	To        string       `json:"to"`
	Action    SwitchAction `json:"action"`
	StartedAt time.Time    `json:"startedAt"`
	// FromModified and ToModified are the data files' modification times,
	// or "" when the file is absent.
	FromModified string `json:"fromModified"`
	ToModified   string `json:"toModified"`
	// ConfigAtFrom reports whether the configuration still names From.
	ConfigAtFrom bool `json:"configAtFrom"`
}

// Journal failures never block a switch; they only cost recoverability.
func (m *Manager) writeJournal(j journal) {
	path, err := m.resolver.JournalPath()
	if err != nil {
		m.logger.Warn("switch journal unavailable", "error", err)
		return
	}
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		m.logger.Warn("switch journal encode failed", "error", err)
		return
	}
	if err := m.storage.WriteFileAtomic(path, data); err != nil {
		m.logger.Warn("switch journal write failed", "path", path, "error", err)
	}
}

func (m *Manager) removeJournal() {
	path, err := m.resolver.JournalPath()
	if err != nil {
		return
	}
	if err := m.storage.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("switch journal cleanup failed", "path", path, "error", err)
	}
}

// PendingSwitch returns the switch left unfinished by an earlier run, or nil
// when there is none.
func (m *Manager) PendingSwitch() (*PendingSwitch, error) {
	path, err := m.resolver.JournalPath()
	if err != nil {
		return nil, err
	}
	data, err := m.storage.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.New(domain.ErrConfigCorrupt, path, err)
	}
	var j journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, domain.New(domain.ErrConfigCorrupt, path, err)
	}

	pending := &PendingSwitch{
		From:         j.From,
		To:           j.To,
		Action:       j.Action,
		StartedAt:    j.StartedAt,
		FromModified: m.modTime(paths.DataFilePath(j.From)),
		ToModified:   m.modTime(paths.DataFilePath(j.To)),
	}
	if cfg, err := m.config.Load(); err == nil {
		pending.ConfigAtFrom = paths.SameDir(cfg.DataDir, j.From)
	}
	return pending, nil
}

// ClearPendingSwitch discards the switch journal.
func (m *Manager) ClearPendingSwitch() error {
	path, err := m.resolver.JournalPath()
	if err != nil {
		return err
	}
	if err := m.storage.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.New(domain.ErrConfigWriteFailed, path, err)
	}
	return nil
}

func (m *Manager) modTime(path string) string {
	info, err := m.storage.Stat(path)
	if err != nil {
		return ""
	}
	return info.ModTime().Local().Format(probe.TimeLayout)
}
