package backup

// Tests for timestamped backups with retention.
//
// Focus: BackupIfChanged (change detection), BackupFile (naming, missing
// source), Prune (retention by modification time), List ordering.

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/example/cmd-notebook/internal/notebook/domain"
	"github.com/example/cmd-notebook/internal/notebook/storage"
)

const (
	testDataFile  = "/notes/cmd_notebook.json"
	testBackupDir = "/notes/.backup"
)

var baseTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)

func newTestService(t *testing.T) (*Service, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(storage.New(fs), logger)
	svc.SetNow(steppingClock(baseTime))
	return svc, fs
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		t := current
		current = current.Add(time.Second)
		return t
	}
}

func writeBackup(t *testing.T, fs afero.Fs, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(testBackupDir, name)
	if err := afero.WriteFile(fs, path, []byte(name), 0o644); err != nil {
		t.Fatalf("write backup: %v", err)
	}
	if err := fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func countBackups(t *testing.T, svc *Service) int {
	t.Helper()
	entries, err := svc.List(testBackupDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return len(entries)
}

func TestFileName(t *testing.T) {
	got := FileName(time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local))
	if got != "cmd_notebook_20240506_070809.json" {
		t.Errorf("FileName() = %q", got)
	}
	if !IsBackupName(got) {
		t.Errorf("IsBackupName(%q) = false", got)
	}
	for _, name := range []string{"cmd_notebook.json", "other_20240506_070809.json", "cmd_notebook_x.json.tmp"} {
		if IsBackupName(name) {
			t.Errorf("IsBackupName(%q) = true", name)
		}
	}
}

func TestBackupIfChanged_MissingOldFile(t *testing.T) {
	svc, fs := newTestService(t)

	if err := svc.BackupIfChanged(testDataFile, []byte("new"), testBackupDir, 10); err != nil {
		t.Fatalf("BackupIfChanged: %v", err)
	}
	if exists, _ := afero.DirExists(fs, testBackupDir); exists {
		t.Error("backup directory should not be created when there is nothing to protect")
	}
}

func TestBackupIfChanged_IdenticalContentSkipped(t *testing.T) {
	svc, fs := newTestService(t)
	if err := afero.WriteFile(fs, testDataFile, []byte("same"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := svc.BackupIfChanged(testDataFile, []byte("same"), testBackupDir, 10); err != nil {
		t.Fatalf("BackupIfChanged: %v", err)
	}
	if n := countBackups(t, svc); n != 0 {
		t.Errorf("expected no backups, got %d", n)
	}
}

func TestBackupIfChanged_CopiesOldContent(t *testing.T) {
	svc, fs := newTestService(t)
	if err := afero.WriteFile(fs, testDataFile, []byte(`{"v":1}`), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := svc.BackupIfChanged(testDataFile, []byte(`{"v":2}`), testBackupDir, 10); err != nil {
		t.Fatalf("BackupIfChanged: %v", err)
	}

	backupPath := filepath.Join(testBackupDir, FileName(baseTime))
	content, err := afero.ReadFile(fs, backupPath)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(content) != `{"v":1}` {
		t.Errorf("backup content = %q", content)
	}
	info, err := fs.Stat(backupPath)
	if err != nil {
		t.Fatalf("stat backup: %v", err)
	}
	if !info.ModTime().Equal(baseTime) {
		t.Errorf("backup mtime = %v, want %v", info.ModTime(), baseTime)
	}
}

func TestBackupIfChanged_PrunesToRetention(t *testing.T) {
	svc, fs := newTestService(t)

	for i := 0; i < 5; i++ {
		if err := afero.WriteFile(fs, testDataFile, []byte(fmt.Sprintf("v%d", i)), 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
		if err := svc.BackupIfChanged(testDataFile, []byte(fmt.Sprintf("v%d", i+1)), testBackupDir, 2); err != nil {
			t.Fatalf("BackupIfChanged %d: %v", i, err)
		}
	}

	entries, err := svc.List(testBackupDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(entries))
	}
	newest, _ := afero.ReadFile(fs, entries[0].Path)
	older, _ := afero.ReadFile(fs, entries[1].Path)
	if string(newest) != "v4" || string(older) != "v3" {
		t.Errorf("kept %q and %q, want v4 and v3", newest, older)
	}
}

func TestBackupIfChanged_BackupFailureReported(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := afero.WriteFile(base, testDataFile, []byte("old"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	svc := New(storage.New(afero.NewReadOnlyFs(base)), nil)

	err := svc.BackupIfChanged(testDataFile, []byte("new"), testBackupDir, 10)
	if !errors.Is(err, domain.ErrBackupFailed) {
		t.Fatalf("expected ErrBackupFailed, got %v", err)
	}
}

func TestBackupFile_MissingSource(t *testing.T) {
	svc, _ := newTestService(t)

	path, err := svc.BackupFile("/nonexistent", testBackupDir)
	if err != nil {
		t.Fatalf("BackupFile: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestBackupFile_ReturnsPath(t *testing.T) {
	svc, fs := newTestService(t)
	if err := afero.WriteFile(fs, testDataFile, []byte("data"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	path, err := svc.BackupFile(testDataFile, testBackupDir)
	if err != nil {
		t.Fatalf("BackupFile: %v", err)
	}
	if want := filepath.Join(testBackupDir, FileName(baseTime)); path != want {
		t.Errorf("BackupFile() = %q, want %q", path, want)
	}

	// Unconditional: identical content still produces a new entry.
	if _, err := svc.BackupFile(testDataFile, testBackupDir); err != nil {
		t.Fatalf("second BackupFile: %v", err)
	}
	if n := countBackups(t, svc); n != 2 {
		t.Errorf("expected 2 backups, got %d", n)
	}
}

func TestBackupFile_SameSecondOverwrites(t *testing.T) {
	svc, fs := newTestService(t)
	svc.SetNow(func() time.Time { return baseTime })

	if err := afero.WriteFile(fs, testDataFile, []byte("first"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := svc.BackupFile(testDataFile, testBackupDir); err != nil {
		t.Fatalf("BackupFile: %v", err)
	}
	if err := afero.WriteFile(fs, testDataFile, []byte("second"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	path, err := svc.BackupFile(testDataFile, testBackupDir)
	if err != nil {
		t.Fatalf("BackupFile: %v", err)
	}

	if n := countBackups(t, svc); n != 1 {
		t.Errorf("expected same-second backups to collide, got %d entries", n)
	}
	content, _ := afero.ReadFile(fs, path)
	if string(content) != "second" {
		t.Errorf("expected later backup to win, got %q", content)
	}
}

func TestPrune_RetainsNewest(t *testing.T) {
	for retention := 0; retention <= 6; retention++ {
		t.Run(fmt.Sprintf("retention=%d", retention), func(t *testing.T) {
			svc, fs := newTestService(t)
			var names []string
			for i := 0; i < 5; i++ {
				stamp := baseTime.Add(time.Duration(i) * time.Hour)
				name := FileName(stamp)
				writeBackup(t, fs, name, stamp)
				names = append(names, name)
			}

			removed := svc.Prune(testBackupDir, retention)

			keep := retention
			if keep > len(names) {
				keep = len(names)
			}
			if removed != len(names)-keep {
				t.Errorf("removed %d, want %d", removed, len(names)-keep)
			}
			for i, name := range names {
				exists, _ := afero.Exists(fs, filepath.Join(testBackupDir, name))
				shouldExist := i >= len(names)-keep
				if exists != shouldExist {
					t.Errorf("%s exists=%v, want %v", name, exists, shouldExist)
				}
			}
		})
	}
}

func TestPrune_OrdersByModTimeNotName(t *testing.T) {
	svc, fs := newTestService(t)

	// Name says newest, mtime says oldest.
	stale := writeBackup(t, fs, "cmd_notebook_29991231_235959.json", baseTime)
	fresh := writeBackup(t, fs, "cmd_notebook_20000101_000000.json", baseTime.Add(time.Hour))

	if removed := svc.Prune(testBackupDir, 1); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if exists, _ := afero.Exists(fs, stale); exists {
		t.Error("oldest-by-mtime backup should be removed")
	}
	if exists, _ := afero.Exists(fs, fresh); !exists {
		t.Error("newest-by-mtime backup should remain")
	}
}

func TestPrune_IgnoresForeignFilesAndDirectories(t *testing.T) {
	svc, fs := newTestService(t)

	foreign := filepath.Join(testBackupDir, "notes.txt")
	if err := afero.WriteFile(fs, foreign, []byte("keep"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	dir := filepath.Join(testBackupDir, "cmd_notebook_dir.json")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	writeBackup(t, fs, FileName(baseTime), baseTime)

	if removed := svc.Prune(testBackupDir, 0); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if exists, _ := afero.Exists(fs, foreign); !exists {
		t.Error("foreign file should not be pruned")
	}
	if exists, _ := afero.DirExists(fs, dir); !exists {
		t.Error("directory should not be pruned")
	}
}

func TestPrune_MissingDirectory(t *testing.T) {
	svc, _ := newTestService(t)

	if removed := svc.Prune("/nonexistent", 0); removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
}

func TestList_NewestFirst(t *testing.T) {
	svc, fs := newTestService(t)
	writeBackup(t, fs, FileName(baseTime), baseTime)
	writeBackup(t, fs, FileName(baseTime.Add(time.Minute)), baseTime.Add(time.Minute))

	entries, err := svc.List(testBackupDir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].ModTime.After(entries[1].ModTime) {
		t.Errorf("entries not newest first: %v then %v", entries[0].ModTime, entries[1].ModTime)
	}

	missing, err := svc.List("/nonexistent")
	if err != nil || len(missing) != 0 {
		t.Errorf("List(missing) = %v, %v; want empty", missing, err)
	}
}
