package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestNewRequiresRootPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty root_path")
	}
}

func TestNewCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "storage")
	if _, err := New(Config{RootPath: root}); err != nil {
		t.Fatalf("New: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("root was not created as a directory: %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	content := []byte(`{"timestamp": 1700000000, "downloads": []}`)
	if err := b.WriteFile(ctx, "data/downloads.json", content); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := b.ReadFile(ctx, "data/downloads.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("ReadFile = %q, want %q", got, content)
	}
}

func TestExists(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	ok, err := b.Exists(ctx, "missing.json")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists = true for missing file")
	}

	if err := b.WriteFile(ctx, "present.json", []byte("{}")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ok, err = b.Exists(ctx, "present.json")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists = false for written file")
	}
}

func TestWriteOverwrites(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.WriteFile(ctx, "doc.json", []byte("old")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := b.WriteFile(ctx, "doc.json", []byte("new")); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}
	got, err := b.ReadFile(ctx, "doc.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("ReadFile = %q, want new", got)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.WriteFile(ctx, "data/doc.json", []byte("payload")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(b.rootPath, "data"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "doc.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want [doc.json] only", names)
	}
}

func TestCreateDirectoryIdempotent(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	if err := b.CreateDirectory(ctx, "a/b/c"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if err := b.CreateDirectory(ctx, "a/b/c"); err != nil {
		t.Fatalf("CreateDirectory repeat: %v", err)
	}
	info, err := os.Stat(filepath.Join(b.rootPath, "a", "b", "c"))
	if err != nil || !info.IsDir() {
		t.Fatalf("directory was not created: %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	b := newBackend(t)
	if _, err := b.ReadFile(context.Background(), "nope.json"); err == nil {
		t.Fatal("expected error reading missing file")
	}
}
