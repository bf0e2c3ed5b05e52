package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "kv.json")
	ctx := context.Background()

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	if _, err := s.Get(ctx, "activeSOS"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "activeSOS", `{"sessionId":"abc123"}`); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	// A fresh instance sees what the first one wrote.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	got, err := reopened.Get(ctx, "activeSOS")
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if got != `{"sessionId":"abc123"}` {
		t.Errorf("Get() = %q", got)
	}

	if err := reopened.Delete(ctx, "activeSOS"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := reopened.Delete(ctx, "activeSOS"); err != nil {
		t.Fatalf("second Delete() error: %v", err)
	}
	again, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := again.Get(ctx, "activeSOS"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Fatal("NewFileStore() accepted corrupt document")
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "kv.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(context.Background(), k, k); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "kv.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want [kv.json]", names)
	}
}
