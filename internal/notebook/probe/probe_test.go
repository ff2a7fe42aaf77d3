package probe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/example/cmd-notebook/internal/notebook/paths"
	"github.com/example/cmd-notebook/internal/notebook/storage"
)

func newTestProber(t *testing.T) (*Prober, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(storage.New(fs), nil), fs
}

func TestIsWritable_CreatesMissingDirectory(t *testing.T) {
	p, fs := newTestProber(t)

	if !p.IsWritable("/new/dir") {
		t.Fatal("expected missing directory to be creatable and writable")
	}
	if ok, _ := afero.IsDir(fs, "/new/dir"); !ok {
		t.Error("directory should have been created")
	}
	if exists, _ := afero.Exists(fs, "/new/dir/.write_test"); exists {
		t.Error("marker file should be removed")
	}
}

func TestIsWritable_ReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/locked", 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	p := New(storage.New(afero.NewReadOnlyFs(base)), nil)

	if p.IsWritable("/locked") {
		t.Error("read-only directory reported writable")
	}
	if p.IsWritable("/missing") {
		t.Error("uncreatable directory reported writable")
	}
}

func TestClassify_EmptyDirCreatesDirectory(t *testing.T) {
	p, fs := newTestProber(t)

	got := p.Classify("/fresh/notes")
	if got.Kind != EmptyDir {
		t.Fatalf("Classify() = %+v, want EmptyDir", got)
	}
	if ok, _ := afero.IsDir(fs, "/fresh/notes"); !ok {
		t.Error("directory should exist after classification")
	}
	if exists, _ := afero.Exists(fs, paths.DataFilePath("/fresh/notes")); exists {
		t.Error("classification must not create a data file")
	}
}

func TestClassify_HasExistingData(t *testing.T) {
	p, fs := newTestProber(t)

	dataFile := paths.DataFilePath("/notes")
	if err := afero.WriteFile(fs, dataFile, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	stamp := time.Date(2024, 3, 9, 14, 5, 6, 0, time.Local)
	if err := fs.Chtimes(dataFile, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got := p.Classify("/notes")
	if got.Kind != HasExistingData {
		t.Fatalf("Classify() = %+v, want HasExistingData", got)
	}
	if got.LastModified != "2024-03-09 14:05:06" {
		t.Errorf("LastModified = %q", got.LastModified)
	}
	if _, err := time.ParseInLocation(TimeLayout, got.LastModified, time.Local); err != nil {
		t.Errorf("LastModified not parseable: %v", err)
	}
}

func TestClassify_TrimsSurroundingWhitespace(t *testing.T) {
	p, fs := newTestProber(t)
	if err := afero.WriteFile(fs, paths.DataFilePath("/mnt/notes"), []byte("PRECIOUS"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got := p.Classify("  /mnt/notes/ ")
	if got.Kind != HasExistingData {
		t.Fatalf("Classify() = %+v, want HasExistingData", got)
	}
	if got.Path != "/mnt/notes" {
		t.Errorf("Path = %q, want /mnt/notes", got.Path)
	}
	if exists, _ := afero.Exists(fs, "/mnt/notes "); exists {
		t.Error("untrimmed directory must not be created")
	}
}

func TestClassify_RelativePathResolved(t *testing.T) {
	p, fs := newTestProber(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}

	got := p.Classify("notes/sub")
	if got.Kind != EmptyDir {
		t.Fatalf("Classify() = %+v, want EmptyDir", got)
	}
	want := filepath.Join(wd, "notes", "sub")
	if got.Path != want {
		t.Errorf("Path = %q, want %q", got.Path, want)
	}
	if ok, _ := afero.IsDir(fs, want); !ok {
		t.Error("resolved directory should have been created")
	}
}

func TestClassify_Invalid(t *testing.T) {
	p, fs := newTestProber(t)
	if err := afero.WriteFile(fs, "/a-file", []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		reason string
	}{
		{"empty", "", ReasonInvalidPath},
		{"control char", "/notes\n", ReasonInvalidPath},
		{"file", "/a-file", ReasonNotDirectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Classify(tt.path)
			if got.Kind != Invalid || got.Reason != tt.reason {
				t.Errorf("Classify(%q) = %+v, want Invalid{%s}", tt.path, got, tt.reason)
			}
		})
	}
}

func TestClassify_ReadOnlyFilesystem(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("/locked", 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	p := New(storage.New(afero.NewReadOnlyFs(base)), nil)

	if got := p.Classify("/locked"); got.Kind != Invalid || got.Reason != ReasonNotWritable {
		t.Errorf("Classify(/locked) = %+v, want not writable", got)
	}
	if got := p.Classify("/missing"); got.Kind != Invalid || got.Reason != ReasonCannotCreate {
		t.Errorf("Classify(/missing) = %+v, want cannot create", got)
	}
}

func TestClassificationJSON(t *testing.T) {
	tests := []struct {
		in   Classification
		want string
	}{
		{Classification{Kind: EmptyDir}, `{"type":"emptyDir"}`},
		{Classification{Kind: HasExistingData, LastModified: "2024-01-02 03:04:05"}, `{"lastModified":"2024-01-02 03:04:05","type":"hasExistingData"}`},
		{Classification{Kind: Invalid, Reason: ReasonNotWritable}, `{"reason":"not writable","type":"invalid"}`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(data) != tt.want {
			t.Errorf("json = %s, want %s", data, tt.want)
		}
	}
}
